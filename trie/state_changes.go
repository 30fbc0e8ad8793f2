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

// StateChangeCause records why a state entry changed during the
// application of a block.
type StateChangeCause byte

const (
	// CauseNotWritableToDisk marks changes that must never reach durable
	// storage; they only exist transiently during execution.
	CauseNotWritableToDisk StateChangeCause = iota
	// CauseInitialState marks entries written while bootstrapping genesis
	// state.
	CauseInitialState
	// CauseTransactionProcessing marks changes applied while converting a
	// transaction into a receipt.
	CauseTransactionProcessing
	// CauseReceiptProcessing marks changes applied while executing a
	// receipt.
	CauseReceiptProcessing
	// CauseUpdatedDelayedReceipts marks queue bookkeeping updates of
	// delayed receipts.
	CauseUpdatedDelayedReceipts
	// CauseValidatorAccountsUpdate marks epoch-boundary updates of
	// validator accounts.
	CauseValidatorAccountsUpdate
	// CauseMigration marks changes produced by protocol migrations.
	CauseMigration
	// CauseResharding marks changes produced while splitting shard state;
	// those are internal artifacts and must never reach the change log.
	CauseResharding
)

func (c StateChangeCause) String() string {
	switch c {
	case CauseNotWritableToDisk:
		return "NotWritableToDisk"
	case CauseInitialState:
		return "InitialState"
	case CauseTransactionProcessing:
		return "TransactionProcessing"
	case CauseReceiptProcessing:
		return "ReceiptProcessing"
	case CauseUpdatedDelayedReceipts:
		return "UpdatedDelayedReceipts"
	case CauseValidatorAccountsUpdate:
		return "ValidatorAccountsUpdate"
	case CauseMigration:
		return "Migration"
	case CauseResharding:
		return "Resharding"
	}
	return "Unknown"
}

// RawStateChange is one recorded mutation of a state entry: the new value
// (or a deletion marker) together with its cause.
type RawStateChange struct {
	Cause   StateChangeCause
	Data    []byte
	Deleted bool
}

// RawStateChangesWithTrieKey collects all changes applied to one trie key
// during one block, in application order.
type RawStateChangesWithTrieKey struct {
	TrieKey TrieKey
	Changes []RawStateChange
}

// KeyForStateChanges is a key into the durable change log: a fixed-width
// block-hash prefix followed by an optional trie-key suffix. A key with
// prefix only addresses all changes of a block; a key with suffix
// addresses the changes of one trie key within the block.
type KeyForStateChanges struct {
	key []byte
}

// KeyForBlock builds the prefix-only key addressing all change log entries
// of a block.
func KeyForBlock(blockHash common.Hash) KeyForStateChanges {
	key := make([]byte, 0, common.HashSize)
	return KeyForStateChanges{key: append(key, blockHash[:]...)}
}

// KeyFromRawKey builds the key addressing the entry of the given raw
// trie-key bytes under the block.
func KeyFromRawKey(blockHash common.Hash, rawKey []byte) KeyForStateChanges {
	key := make([]byte, 0, common.HashSize+len(rawKey))
	key = append(key, blockHash[:]...)
	return KeyForStateChanges{key: append(key, rawKey...)}
}

// KeyFromTrieKey builds the key addressing the entry of the given trie key
// under the block.
func KeyFromTrieKey(blockHash common.Hash, trieKey TrieKey) KeyForStateChanges {
	key := make([]byte, 0, common.HashSize+trieKey.Len())
	key = append(key, blockHash[:]...)
	return KeyForStateChanges{key: trieKey.Append(key)}
}

// Bytes returns the raw key bytes.
func (k KeyForStateChanges) Bytes() []byte {
	return k.key
}

// FindIter scans the change log for all entries whose key starts with this
// key, lazily decoding each stored entry. The iterator is single-use and
// must be released.
func (k KeyForStateChanges) FindIter(store storage.Store) *StateChangeIterator {
	return &StateChangeIterator{it: store.NewIterator(storage.ColumnStateChanges, k.key)}
}

// FindExactIter scans like FindIter but only yields entries whose trie key
// has exactly the length of this key's suffix. This filters out sibling
// entries whose trie key merely shares the queried key as a byte prefix,
// and is mandatory for point queries.
func (k KeyForStateChanges) FindExactIter(store storage.Store) *StateChangeIterator {
	return &StateChangeIterator{
		it:      store.NewIterator(storage.ColumnStateChanges, k.key),
		exact:   true,
		wantLen: len(k.key) - common.HashSize,
	}
}

// StateChangeIterator is a lazy, single-pass cursor over decoded change
// log entries.
type StateChangeIterator struct {
	it      storage.Iterator
	exact   bool
	wantLen int
	current RawStateChangesWithTrieKey
	err     error
}

// Next advances to the next matching entry, reporting whether one is
// available. Once Next returned false, Error must be checked.
func (it *StateChangeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.it.Next() {
		var entry RawStateChangesWithTrieKey
		if err := rlp.DecodeBytes(it.it.Value(), &entry); err != nil {
			it.err = fmt.Errorf("failed to decode state change entry; %w", err)
			return false
		}
		if it.exact && entry.TrieKey.Len() != it.wantLen {
			continue
		}
		it.current = entry
		return true
	}
	it.err = it.it.Error()
	return false
}

// Value returns the entry the iterator is positioned at.
func (it *StateChangeIterator) Value() RawStateChangesWithTrieKey {
	return it.current
}

// Error returns the first error encountered, if any.
func (it *StateChangeIterator) Error() error {
	return it.err
}

// Release frees the underlying store iterator.
func (it *StateChangeIterator) Release() {
	it.it.Release()
}
