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
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
)

// TrieRefcountChange is one reference-count adjustment to a
// content-addressed trie node or value. Value carries the content bytes
// for insertions so absent entries can be created; it is ignored for pure
// decrements.
type TrieRefcountChange struct {
	// Hash is the content hash of the node or value.
	Hash common.Hash
	// Value is the raw content; required for insertions.
	Value []byte
	// Rc is the unsigned adjustment; its direction is determined by the
	// list (insertions or deletions) the change belongs to.
	Rc uint32
}

// TrieChanges is the diff produced by applying a batch of operations to a
// trie at OldRoot, resulting in NewRoot. It is immutable after creation.
// A hash must not appear in both lists of one changeset.
type TrieChanges struct {
	OldRoot    StateRoot
	NewRoot    StateRoot
	Insertions []TrieRefcountChange
	Deletions  []TrieRefcountChange
}

// WrappedTrieChanges couples a trie diff with the correlated account-level
// state changes and the block that produced them, ready to be flushed into
// one store batch.
type WrappedTrieChanges struct {
	tries        ShardTries
	shard        ShardUId
	trieChanges  TrieChanges
	stateChanges []RawStateChangesWithTrieKey
	blockHash    common.Hash
}

// NewWrappedTrieChanges wraps the outcome of applying one block to one
// shard.
func NewWrappedTrieChanges(
	tries ShardTries,
	shard ShardUId,
	trieChanges TrieChanges,
	stateChanges []RawStateChangesWithTrieKey,
	blockHash common.Hash,
) *WrappedTrieChanges {
	return &WrappedTrieChanges{
		tries:        tries,
		shard:        shard,
		trieChanges:  trieChanges,
		stateChanges: stateChanges,
		blockHash:    blockHash,
	}
}

// StateChanges exposes the not-yet-flushed state changes.
func (w *WrappedTrieChanges) StateChanges() []RawStateChangesWithTrieKey {
	return w.stateChanges
}

// InsertionsInto schedules the diff's trie node insertions into the batch.
func (w *WrappedTrieChanges) InsertionsInto(batch *storage.Batch) {
	w.tries.ApplyInsertions(&w.trieChanges, w.shard, batch)
}

// DeletionsInto schedules the diff's trie node deletions into the batch.
func (w *WrappedTrieChanges) DeletionsInto(batch *storage.Batch) {
	w.tries.ApplyDeletions(&w.trieChanges, w.shard, batch)
}

// StateChangesInto schedules the account-level change log entries into the
// batch. The changes are drained: a second call is a no-op. Only
// client-reportable trie key kinds are logged. Changes carrying a cause
// that must never be persisted indicate a logic error upstream and panic.
func (w *WrappedTrieChanges) StateChangesInto(batch *storage.Batch) {
	for _, changeWithTrieKey := range w.stateChanges {
		for _, change := range changeWithTrieKey.Changes {
			if change.Cause == CauseNotWritableToDisk {
				panic("NotWritableToDisk changes must never be finalized")
			}
			if change.Cause == CauseResharding {
				panic("Resharding changes must never be finalized")
			}
		}
		if !changeWithTrieKey.TrieKey.reportableForClients() {
			continue
		}
		encoded, err := rlp.EncodeToBytes(&changeWithTrieKey)
		if err != nil {
			panic(fmt.Sprintf("state change serialization cannot fail: %v", err))
		}
		key := KeyFromTrieKey(w.blockHash, changeWithTrieKey.TrieKey)
		batch.Set(storage.ColumnStateChanges, key.Bytes(), encoded)
	}
	w.stateChanges = nil
}

// TrieChangesInto schedules the serialized diff snapshot into the batch,
// keyed by block hash and shard.
func (w *WrappedTrieChanges) TrieChangesInto(batch *storage.Batch) error {
	encoded, err := rlp.EncodeToBytes(&w.trieChanges)
	if err != nil {
		return fmt.Errorf("failed to serialize trie changes; %w", err)
	}
	batch.Set(storage.ColumnTrieChanges, blockShardKey(w.blockHash, w.shard), encoded)
	return nil
}

// blockShardKey builds the key of a per-block, per-shard record.
func blockShardKey(blockHash common.Hash, shard ShardUId) []byte {
	shardBytes := shard.Bytes()
	key := make([]byte, 0, common.HashSize+ShardUIdSize)
	key = append(key, blockHash[:]...)
	return append(key, shardBytes[:]...)
}
