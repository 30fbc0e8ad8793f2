// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package trie

import (
	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
)

// FlatStateFactory creates flat-state accelerator handles for shards.
// A flat state shortcuts selected trie reads without a full traversal;
// its internal representation is owned elsewhere, this package only wires
// handles into the tries it builds.
type FlatStateFactory struct {
	store   storage.Store
	enabled bool
}

// NewFlatStateFactory creates a factory handing out flat states backed by
// the given store. A disabled factory hands out nil accelerators, which
// tries treat as "no shortcut available".
func NewFlatStateFactory(store storage.Store, enabled bool) FlatStateFactory {
	return FlatStateFactory{store: store, enabled: enabled}
}

// NewFlatStateForShard creates the accelerator handle for one shard. The
// block hash, when given, pins the accelerator to the state as of that
// block. Returns nil when the factory is disabled.
func (f FlatStateFactory) NewFlatStateForShard(shardID uint32, blockHash *common.Hash, isView bool) *FlatState {
	if !f.enabled {
		return nil
	}
	return &FlatState{store: f.store, shardID: shardID, blockHash: blockHash, view: isView}
}

// FlatState is a handle on the flat lookup structure of one shard,
// optionally pinned to a block.
type FlatState struct {
	store     storage.Store
	shardID   uint32
	blockHash *common.Hash
	view      bool
}

// ShardID returns the shard this accelerator serves.
func (f *FlatState) ShardID() uint32 {
	return f.shardID
}

// BlockHash returns the block this accelerator is pinned to, or nil for
// the latest state.
func (f *FlatState) BlockHash() *common.Hash {
	return f.blockHash
}

// IsView reports whether the handle was created for read-only access.
func (f *FlatState) IsView() bool {
	return f.view
}
