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
	"sync"

	"github.com/Fantom-foundation/Mosaic/common"
)

// TrieCache is a shared-ownership handle to an in-memory cache of trie
// nodes and values, keyed by content hash and scoped to one shard and one
// access mode. Copies of a TrieCache share the same underlying cache;
// a handle stays valid for as long as any copy is retained, independent of
// the registry it was obtained from. All operations are safe for
// concurrent use.
type TrieCache struct {
	shared *trieCacheShared
}

type trieCacheShared struct {
	mu           sync.Mutex
	cache        *common.Cache[common.Hash, []byte]
	maxValueSize int
	shard        ShardUId
	view         bool
}

// CacheUpdate is one element of a bulk cache update: a value to retain
// for the hash, or nil to drop the hash from the cache.
type CacheUpdate struct {
	Hash  common.Hash
	Value []byte
}

func newTrieCache(capacity, maxValueSize int, shard ShardUId, view bool) TrieCache {
	return TrieCache{shared: &trieCacheShared{
		cache:        common.NewCache[common.Hash, []byte](capacity, nil),
		maxValueSize: maxValueSize,
		shard:        shard,
		view:         view,
	}}
}

// Get returns the cached value for the hash, if present. The returned
// slice must not be modified.
func (c TrieCache) Get(hash common.Hash) ([]byte, bool) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	return c.shared.cache.Get(hash)
}

// Set retains the value for the hash. Values above the configured size
// limit are silently skipped; re-reading them is cheaper than the cache
// space they would consume.
func (c TrieCache) Set(hash common.Hash, value []byte) {
	if len(value) > c.shared.maxValueSize {
		return
	}
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	c.shared.cache.Set(hash, value)
}

// Clear drops all cached entries. Readers holding the handle concurrently
// simply fall through to the store on their next access.
func (c TrieCache) Clear() {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	c.shared.cache.Clear()
}

// UpdateCache applies a bulk update under a single lock acquisition.
// Entries with a nil value are dropped from the cache, all others are
// inserted subject to the size limit.
func (c TrieCache) UpdateCache(updates []CacheUpdate) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	for _, update := range updates {
		if update.Value == nil {
			c.shared.cache.Remove(update.Hash)
		} else if len(update.Value) <= c.shared.maxValueSize {
			c.shared.cache.Set(update.Hash, update.Value)
		}
	}
}

// Len returns the number of currently cached entries.
func (c TrieCache) Len() int {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	return c.shared.cache.Len()
}

// SharesStateWith reports whether both handles address the same underlying
// cache.
func (c TrieCache) SharesStateWith(other TrieCache) bool {
	return c.shared == other.shared
}
