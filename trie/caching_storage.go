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

	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
)

// nodeKeySize is the length of a node storage key: the shard identifier
// followed by the content hash.
const nodeKeySize = ShardUIdSize + common.HashSize

// nodeKey is the storage key of a trie node or value in the node column.
type nodeKey [nodeKeySize]byte

func (k *nodeKey) set(shard ShardUId, hash common.Hash) {
	shardBytes := shard.Bytes()
	copy(k[:ShardUIdSize], shardBytes[:])
	copy(k[ShardUIdSize:], hash[:])
}

// nodeKeyFor builds the node column key for the given shard and hash.
func nodeKeyFor(shard ShardUId, hash common.Hash) []byte {
	var key nodeKey
	key.set(shard, hash)
	return key[:]
}

// shardAndHashFromNodeKey decodes a node column key back into the shard
// identifier and content hash it was built from.
func shardAndHashFromNodeKey(key []byte) (ShardUId, common.Hash, error) {
	if len(key) != nodeKeySize {
		return ShardUId{}, common.Hash{}, fmt.Errorf("invalid node key length %d, expected %d", len(key), nodeKeySize)
	}
	shard, err := ShardUIdFromBytes(key[:ShardUIdSize])
	if err != nil {
		return ShardUId{}, common.Hash{}, err
	}
	hash, err := common.HashFromBytes(key[ShardUIdSize:])
	if err != nil {
		return ShardUId{}, common.Hash{}, err
	}
	return shard, hash, nil
}

// CachingStorage is a NodeStorage reading through a per-shard TrieCache
// into the node column of a store. Cache misses populate the cache; a
// prefetcher, when attached, warms the same cache from the side.
type CachingStorage struct {
	store      storage.Store
	cache      TrieCache
	shard      ShardUId
	view       bool
	prefetcher *PrefetchApi
}

// NewCachingStorage creates a caching storage for one shard and access
// mode. The prefetcher may be nil.
func NewCachingStorage(
	store storage.Store,
	cache TrieCache,
	shard ShardUId,
	view bool,
	prefetcher *PrefetchApi,
) *CachingStorage {
	return &CachingStorage{store: store, cache: cache, shard: shard, view: view, prefetcher: prefetcher}
}

// Retrieve returns the bytes of the node or value with the given hash,
// reading from the cache first and falling back to the store.
func (s *CachingStorage) Retrieve(hash common.Hash) ([]byte, error) {
	if value, exists := s.cache.Get(hash); exists {
		return value, nil
	}
	value, err := s.store.Get(storage.ColumnState, nodeKeyFor(s.shard, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve node %s of shard %s; %w", hash, s.shard, err)
	}
	s.cache.Set(hash, value)
	return value, nil
}

// Prefetcher returns the attached prefetch handle, or nil.
func (s *CachingStorage) Prefetcher() *PrefetchApi {
	return s.prefetcher
}
