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
)

// StateRoot identifies the state of one shard at one block: the hash of
// the root node of its trie.
type StateRoot = common.Hash

// NodeStorage provides retrieval of trie nodes and values by their content
// hash. Implementations are expected to be backed by a store, typically
// with a cache in front.
type NodeStorage interface {
	// Retrieve returns the raw bytes of the node or value with the given
	// hash. The returned slice must not be modified.
	Retrieve(hash common.Hash) ([]byte, error)
}

// Trie is a handle on the state trie of one shard at one state root. The
// traversal and mutation logic operating on it lives outside of this
// package; here a trie is only assembled from its storage, root, and an
// optional flat-state accelerator.
type Trie struct {
	storage   NodeStorage
	root      StateRoot
	flatState *FlatState
}

// NewTrie creates a trie handle over the given node storage, rooted at the
// given state root. The flat-state accelerator may be nil.
func NewTrie(storage NodeStorage, root StateRoot, flatState *FlatState) *Trie {
	return &Trie{storage: storage, root: root, flatState: flatState}
}

// Root returns the state root this trie is anchored at.
func (t *Trie) Root() StateRoot {
	return t.root
}

// FlatState returns the attached flat-state accelerator, or nil.
func (t *Trie) FlatState() *FlatState {
	return t.flatState
}

// RetrieveRaw fetches the raw bytes of a node or value of this trie by its
// content hash.
func (t *Trie) RetrieveRaw(hash common.Hash) ([]byte, error) {
	return t.storage.Retrieve(hash)
}
