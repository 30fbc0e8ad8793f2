// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package storage

//go:generate mockgen -source storage.go -destination storage_mocks.go -package storage

import (
	"github.com/Fantom-foundation/Mosaic/common"
)

// Column divides the key-value storage into independent key spaces by
// adding a prefix byte to every key.
type Column byte

const (
	// ColumnState holds reference-counted trie nodes and values, keyed by
	// a shard identifier followed by the content hash.
	ColumnState Column = 'S'
	// ColumnStateChanges holds the durable per-block change log, keyed by
	// a block hash followed by a trie key.
	ColumnStateChanges Column = 'C'
	// ColumnTrieChanges holds serialized trie diffs, keyed by a block hash
	// followed by a shard identifier.
	ColumnTrieChanges Column = 'T'
	// ColumnMisc holds auxiliary singleton records.
	ColumnMisc Column = 'M'
)

func (c Column) String() string {
	switch c {
	case ColumnState:
		return "State"
	case ColumnStateChanges:
		return "StateChanges"
	case ColumnTrieChanges:
		return "TrieChanges"
	case ColumnMisc:
		return "Misc"
	}
	return "Unknown"
}

// IsRefcounted indicates whether values of this column carry a reference
// count and are merged on commit instead of being overwritten.
func (c Column) IsRefcounted() bool {
	return c == ColumnState
}

// ErrNotFound is reported when reading a key that is not present, or whose
// reference count has dropped to zero.
const ErrNotFound = common.ConstError("storage: key not found")

// Iterator is a single-use cursor over a key range. It starts positioned
// before the first entry; Next advances it and reports whether an entry is
// available. Release must be called once done, and Error be checked after
// the last Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Store is a column-oriented key-value store with atomic batch commits.
// Implementations must allow any number of concurrent readers; Commit may
// be called concurrently with readers but not with another Commit.
type Store interface {
	// Get returns the value stored for the key, or ErrNotFound. For
	// refcounted columns the reference count is stripped and only the
	// payload is returned.
	Get(col Column, key []byte) ([]byte, error)

	// Has reports whether the key is present.
	Has(col Column, key []byte) (bool, error)

	// NewIterator returns an iterator over all entries of the column whose
	// key starts with the given prefix, in ascending key order. Values of
	// refcounted columns are returned with the reference count stripped.
	NewIterator(col Column, prefix []byte) Iterator

	// Commit applies all operations of the batch atomically. The batch's
	// cache observer, if any, is notified exactly once before the
	// operations become visible.
	Commit(batch *Batch) error

	// Close releases all resources held by the store.
	Close() error
}
