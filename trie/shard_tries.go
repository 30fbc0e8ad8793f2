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
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
)

// ShardTries is the facade of the sharded trie storage layer. It owns the
// per-shard node caches for client and view access, the per-shard
// prefetchers, and the translation of trie diffs into refcount operations
// on the store. Copies of a ShardTries share the same state; subsystems
// holding it concurrently all observe one set of caches.
type ShardTries struct {
	inner *shardTriesInner
}

type shardTriesInner struct {
	store   storage.Store
	config  Config
	metrics Metrics

	// Caches reserved for the client (read-write, prefetch-eligible)
	// access path.
	cachesMu sync.RWMutex
	caches   map[ShardUId]TrieCache

	// Caches for view (read-only, isolated) access. Kept disjoint from
	// the client caches so view calls never observe nodes invalidated by
	// an in-progress write.
	viewCachesMu sync.RWMutex
	viewCaches   map[ShardUId]TrieCache

	flatStateFactory FlatStateFactory

	// Prefetcher state, such as worker goroutines, per shard.
	prefetchersMu sync.Mutex
	prefetchers   map[ShardUId]prefetcherEntry
}

type prefetcherEntry struct {
	api     *PrefetchApi
	workers *PrefetchWorkers
}

// NewShardTries creates the facade over the given store. Caches for the
// given shards are created eagerly; shards outside the list are still
// served, with their caches created on first access.
func NewShardTries(
	store storage.Store,
	config Config,
	shardUIds []ShardUId,
	flatStateFactory FlatStateFactory,
) ShardTries {
	config = config.withDefaults()
	inner := &shardTriesInner{
		store:            store,
		config:           config,
		metrics:          config.Metrics,
		caches:           make(map[ShardUId]TrieCache, len(shardUIds)),
		viewCaches:       make(map[ShardUId]TrieCache, len(shardUIds)),
		flatStateFactory: flatStateFactory,
		prefetchers:      map[ShardUId]prefetcherEntry{},
	}
	for _, shard := range shardUIds {
		inner.caches[shard] = newTrieCache(config.CacheCapacity, config.MaxCachedValueSize, shard, false)
		inner.viewCaches[shard] = newTrieCache(config.ViewCacheCapacity, config.MaxCachedValueSize, shard, true)
	}
	return ShardTries{inner: inner}
}

// NewTestTries creates a facade over the store with numShards shards of
// the given version and a default configuration. Intended for tests.
func NewTestTries(store storage.Store, version uint32, numShards uint32) ShardTries {
	if numShards == 0 {
		panic("a test trie set needs at least one shard")
	}
	shardUIds := make([]ShardUId, 0, numShards)
	for shardID := uint32(0); shardID < numShards; shardID++ {
		shardUIds = append(shardUIds, ShardUId{Version: version, ShardID: shardID})
	}
	return NewShardTries(store, Config{}, shardUIds, NewFlatStateFactory(store, false))
}

// IsSame reports whether both handles share the same underlying state.
func (t ShardTries) IsSame(other ShardTries) bool {
	return t.inner == other.inner
}

// Store returns the underlying store.
func (t ShardTries) Store() storage.Store {
	return t.inner.store
}

// GetTrieForShard returns a read-write trie of the shard at the given
// state root, wired to the shard's client cache and, if enabled, its
// prefetcher.
func (t ShardTries) GetTrieForShard(shard ShardUId, stateRoot StateRoot) *Trie {
	return t.getTrieForShard(shard, stateRoot, false, nil)
}

// GetTrieWithBlockHashForShard is GetTrieForShard with the flat-state
// accelerator pinned to the given block.
func (t ShardTries) GetTrieWithBlockHashForShard(shard ShardUId, stateRoot StateRoot, blockHash common.Hash) *Trie {
	return t.getTrieForShard(shard, stateRoot, false, &blockHash)
}

// GetViewTrieForShard returns a read-only trie of the shard at the given
// state root, served from the isolated view cache and never prefetching.
func (t ShardTries) GetViewTrieForShard(shard ShardUId, stateRoot StateRoot) *Trie {
	return t.getTrieForShard(shard, stateRoot, true, nil)
}

func (t ShardTries) getTrieForShard(shard ShardUId, stateRoot StateRoot, isView bool, blockHash *common.Hash) *Trie {
	cache := t.getCacheFor(shard, isView)
	var prefetcher *PrefetchApi
	if t.inner.config.prefetchingEnabled(isView) {
		prefetcher = t.prefetcherFor(shard, cache)
	}
	nodeStorage := NewCachingStorage(t.inner.store, cache, shard, isView, prefetcher)
	flatState := t.inner.flatStateFactory.NewFlatStateForShard(shard.ShardID, blockHash, isView)
	return NewTrie(nodeStorage, stateRoot, flatState)
}

// getCacheFor resolves the shard's cache for the access mode, creating it
// on first use. Lookup runs under a read lock; only a miss promotes to the
// write lock.
func (t ShardTries) getCacheFor(shard ShardUId, isView bool) TrieCache {
	mu, caches, capacity := &t.inner.cachesMu, t.inner.caches, t.inner.config.CacheCapacity
	if isView {
		mu, caches, capacity = &t.inner.viewCachesMu, t.inner.viewCaches, t.inner.config.ViewCacheCapacity
	}
	mu.RLock()
	cache, exists := caches[shard]
	mu.RUnlock()
	if exists {
		return cache
	}
	mu.Lock()
	defer mu.Unlock()
	if cache, exists := caches[shard]; exists {
		return cache
	}
	cache = newTrieCache(capacity, t.inner.config.MaxCachedValueSize, shard, isView)
	caches[shard] = cache
	return cache
}

// prefetcherFor resolves the shard's prefetcher, starting its worker pool
// on first use.
func (t ShardTries) prefetcherFor(shard ShardUId, cache TrieCache) *PrefetchApi {
	t.inner.prefetchersMu.Lock()
	defer t.inner.prefetchersMu.Unlock()
	if entry, exists := t.inner.prefetchers[shard]; exists {
		return entry.api
	}
	api, workers := newPrefetchApi(t.inner.store, cache, shard, t.inner.config)
	t.inner.prefetchers[shard] = prefetcherEntry{api: api, workers: workers}
	return api
}

// ApplyInsertions schedules all insertions of the changeset as refcount
// increments into the batch.
func (t ShardTries) ApplyInsertions(changes *TrieChanges, shard ShardUId, batch *storage.Batch) {
	t.inner.metrics.AppliedInsertions(shard, len(changes.Insertions))
	t.applyInsertionsInner(changes.Insertions, shard, batch)
}

// ApplyDeletions schedules all deletions of the changeset as refcount
// decrements into the batch.
func (t ShardTries) ApplyDeletions(changes *TrieChanges, shard ShardUId, batch *storage.Batch) {
	t.inner.metrics.AppliedDeletions(shard, len(changes.Deletions))
	t.applyDeletionsInner(changes.Deletions, shard, batch)
}

// RevertInsertions undoes a previously applied changeset's insertions by
// scheduling refcount decrements for the insertion list. It is the exact
// inverse of ApplyInsertions, not a separate operation.
func (t ShardTries) RevertInsertions(changes *TrieChanges, shard ShardUId, batch *storage.Batch) {
	t.inner.metrics.RevertedInsertions(shard, len(changes.Insertions))
	t.applyDeletionsInner(changes.Insertions, shard, batch)
}

// ApplyAll schedules the whole changeset into a fresh batch and returns it
// together with the diff's new root. Insertions are applied strictly
// before deletions: a node shared between the old and new trie may receive
// an increment and an unrelated decrement in the same changeset, and the
// decrement must never transiently observe a zero count for a node that
// stays referenced.
func (t ShardTries) ApplyAll(changes *TrieChanges, shard ShardUId) (*storage.Batch, StateRoot) {
	batch := storage.NewBatch()
	t.applyInsertionsInner(changes.Insertions, shard, batch)
	t.applyDeletionsInner(changes.Deletions, shard, batch)
	return batch, changes.NewRoot
}

func (t ShardTries) applyInsertionsInner(insertions []TrieRefcountChange, shard ShardUId, batch *storage.Batch) {
	batch.SetCacheObserver(t)
	for _, change := range insertions {
		batch.IncrementRefcountBy(storage.ColumnState, nodeKeyFor(shard, change.Hash), change.Value, change.Rc)
	}
}

func (t ShardTries) applyDeletionsInner(deletions []TrieRefcountChange, shard ShardUId, batch *storage.Batch) {
	batch.SetCacheObserver(t)
	for _, change := range deletions {
		batch.DecrementRefcountBy(storage.ColumnState, nodeKeyFor(shard, change.Hash), change.Rc)
	}
}

// UpdateCache synchronizes the client caches with the operations of a
// batch being committed, so subsequent reads observe the new nodes without
// re-fetching them from the store. Refcount operations on the node column
// translate into cache updates, batched per shard to amortize lock
// acquisitions; a delete-all on the node column clears every shard's
// cache. Any other operation kind on the node column is a programming
// error. UpdateCache implements storage.CacheObserver.
func (t ShardTries) UpdateCache(ops []storage.Op) error {
	updates := map[ShardUId][]CacheUpdate{}
	for _, op := range ops {
		switch op.Kind {
		case storage.OpUpdateRefcount:
			if op.Col != storage.ColumnState {
				continue
			}
			shard, hash, err := shardAndHashFromNodeKey(op.Key)
			if err != nil {
				return fmt.Errorf("malformed node key in commit batch; %w", err)
			}
			if op.Rc > 0 {
				updates[shard] = append(updates[shard], CacheUpdate{Hash: hash, Value: op.Value})
			} else {
				updates[shard] = append(updates[shard], CacheUpdate{Hash: hash, Value: nil})
			}
		case storage.OpDeleteAll:
			if op.Col != storage.ColumnState {
				continue
			}
			// Wiping the node column happens on state-sync resets; drop
			// all cached nodes but keep the shard set intact.
			t.inner.config.Logger.Info("node column wiped, clearing all shard trie caches")
			t.inner.cachesMu.RLock()
			for _, cache := range t.inner.caches {
				cache.Clear()
			}
			t.inner.cachesMu.RUnlock()
		default:
			if op.Col == storage.ColumnState {
				panic(fmt.Sprintf("unexpected %s operation on the %s column", op.Kind, op.Col))
			}
		}
	}

	shards := maps.Keys(updates)
	slices.SortFunc(shards, ShardUId.Compare)
	for _, shard := range shards {
		t.getCacheFor(shard, false).UpdateCache(updates[shard])
	}
	return nil
}

// Close stops all per-shard prefetch workers. The caches stay usable;
// outstanding trie handles keep working without prefetching.
func (t ShardTries) Close() {
	t.inner.prefetchersMu.Lock()
	entries := maps.Values(t.inner.prefetchers)
	maps.Clear(t.inner.prefetchers)
	t.inner.prefetchersMu.Unlock()
	for _, entry := range entries {
		entry.workers.Stop()
	}
}
