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
	"bytes"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
)

func TestNodeKey_RoundTrip(t *testing.T) {
	shard := ShardUId{Version: 1, ShardID: 3}
	hash := common.Keccak256([]byte("node"))
	key := nodeKeyFor(shard, hash)
	if len(key) != nodeKeySize {
		t.Fatalf("unexpected key length %d", len(key))
	}
	gotShard, gotHash, err := shardAndHashFromNodeKey(key)
	if err != nil {
		t.Fatalf("failed to decode node key: %v", err)
	}
	if gotShard != shard || gotHash != hash {
		t.Errorf("round trip mangled key: %v, %s", gotShard, gotHash)
	}
}

func TestNodeKey_DecodingRejectsWrongLengths(t *testing.T) {
	for _, size := range []int{0, ShardUIdSize, nodeKeySize - 1, nodeKeySize + 1} {
		if _, _, err := shardAndHashFromNodeKey(make([]byte, size)); err == nil {
			t.Errorf("key of %d bytes should be rejected", size)
		}
	}
}

func TestNodeKey_KeysOfDifferentShardsAreDisjoint(t *testing.T) {
	hash := common.Keccak256([]byte("node"))
	a := nodeKeyFor(ShardUId{Version: 1, ShardID: 0}, hash)
	b := nodeKeyFor(ShardUId{Version: 1, ShardID: 1}, hash)
	c := nodeKeyFor(ShardUId{Version: 2, ShardID: 0}, hash)
	if bytes.Equal(a, b) || bytes.Equal(a, c) {
		t.Errorf("node keys must embed the shard identity")
	}
}

func TestCachingStorage_MissesFallThroughAndPopulateTheCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := storage.NewMockStore(ctrl)
	shard := ShardUId{Version: 1, ShardID: 2}
	hash := common.Keccak256([]byte("node"))
	store.EXPECT().
		Get(storage.ColumnState, nodeKeyFor(shard, hash)).
		Return([]byte("node"), nil)

	cache := newTrieCache(10, 100, shard, false)
	nodeStorage := NewCachingStorage(store, cache, shard, false, nil)
	value, err := nodeStorage.Retrieve(hash)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if !bytes.Equal(value, []byte("node")) {
		t.Errorf("unexpected value: %x", value)
	}
	if _, exists := cache.Get(hash); !exists {
		t.Errorf("retrieved node should have been cached")
	}
}

func TestCachingStorage_HitsDoNotTouchTheStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := storage.NewMockStore(ctrl) // no expectations, any call fails
	shard := ShardUId{Version: 1, ShardID: 2}
	hash := common.Keccak256([]byte("node"))

	cache := newTrieCache(10, 100, shard, false)
	cache.Set(hash, []byte("node"))
	nodeStorage := NewCachingStorage(store, cache, shard, false, nil)
	value, err := nodeStorage.Retrieve(hash)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if !bytes.Equal(value, []byte("node")) {
		t.Errorf("unexpected value: %x", value)
	}
}

func TestCachingStorage_MissingNodesReportNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := storage.NewMockStore(ctrl)
	store.EXPECT().
		Get(storage.ColumnState, gomock.Any()).
		Return(nil, storage.ErrNotFound)

	shard := ShardUId{Version: 1, ShardID: 2}
	cache := newTrieCache(10, 100, shard, false)
	nodeStorage := NewCachingStorage(store, cache, shard, false, nil)
	_, err := nodeStorage.Retrieve(common.Keccak256([]byte("missing")))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected a wrapped not-found error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("failed retrievals must not populate the cache")
	}
}
