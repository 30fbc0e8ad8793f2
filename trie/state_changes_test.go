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
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Fantom-foundation/Mosaic/common"
	"github.com/Fantom-foundation/Mosaic/storage"
	"github.com/Fantom-foundation/Mosaic/storage/memory"
)

func TestKeyForStateChanges_BlockKeyIsTheBlockHash(t *testing.T) {
	blockHash := common.Keccak256([]byte("block"))
	key := KeyForBlock(blockHash)
	if !bytes.Equal(key.Bytes(), blockHash[:]) {
		t.Errorf("unexpected key: %x", key.Bytes())
	}
}

func TestKeyForStateChanges_RawKeyIsAppendedToTheBlockHash(t *testing.T) {
	blockHash := common.Keccak256([]byte("block"))
	key := KeyFromRawKey(blockHash, []byte("raw"))
	expected := append(append([]byte{}, blockHash[:]...), []byte("raw")...)
	if !bytes.Equal(key.Bytes(), expected) {
		t.Errorf("unexpected key: %x", key.Bytes())
	}
}

func TestKeyForStateChanges_TrieKeyUsesTheCanonicalEncoding(t *testing.T) {
	blockHash := common.Keccak256([]byte("block"))
	trieKey := TrieKey{Kind: TrieKeyAccount, AccountID: "alice"}
	key := KeyFromTrieKey(blockHash, trieKey)
	if !bytes.Equal(key.Bytes(), KeyFromRawKey(blockHash, trieKey.Bytes()).Bytes()) {
		t.Errorf("trie key and raw key construction diverge: %x", key.Bytes())
	}
}

// writeChangeEntry stores one change log entry the way a finalized block
// would.
func writeChangeEntry(t *testing.T, store storage.Store, blockHash common.Hash, entry RawStateChangesWithTrieKey) {
	t.Helper()
	encoded, err := rlp.EncodeToBytes(&entry)
	if err != nil {
		t.Fatalf("failed to encode entry: %v", err)
	}
	batch := storage.NewBatch()
	batch.Set(storage.ColumnStateChanges, KeyFromTrieKey(blockHash, entry.TrieKey).Bytes(), encoded)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("failed to store entry: %v", err)
	}
}

func TestStateChangeIterator_FindIterListsAllChangesOfTheBlock(t *testing.T) {
	store := memory.NewStore()
	blockHash := common.Keccak256([]byte("block"))
	otherBlock := common.Keccak256([]byte("other block"))
	writeChangeEntry(t, store, blockHash, RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyAccount, AccountID: "alice"},
		Changes: []RawStateChange{{Cause: CauseTransactionProcessing, Data: []byte("a")}},
	})
	writeChangeEntry(t, store, blockHash, RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyContractCode, AccountID: "bob"},
		Changes: []RawStateChange{{Cause: CauseReceiptProcessing, Deleted: true}},
	})
	writeChangeEntry(t, store, otherBlock, RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyAccount, AccountID: "carol"},
		Changes: []RawStateChange{{Cause: CauseInitialState, Data: []byte("c")}},
	})

	it := KeyForBlock(blockHash).FindIter(store)
	defer it.Release()
	accounts := map[string]bool{}
	for it.Next() {
		accounts[it.Value().TrieKey.AccountID] = true
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if len(accounts) != 2 || !accounts["alice"] || !accounts["bob"] {
		t.Errorf("unexpected entries: %v", accounts)
	}
}

func TestStateChangeIterator_FindIterOfAnUnknownBlockIsEmpty(t *testing.T) {
	store := memory.NewStore()
	writeChangeEntry(t, store, common.Keccak256([]byte("block")), RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyAccount, AccountID: "alice"},
		Changes: []RawStateChange{{Cause: CauseInitialState}},
	})
	it := KeyForBlock(common.Keccak256([]byte("unknown"))).FindIter(store)
	defer it.Release()
	if it.Next() {
		t.Errorf("unexpected entry for unknown block: %v", it.Value())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}

	// The same trie key queried under a block without entries is empty too.
	exact := KeyFromTrieKey(common.Keccak256([]byte("unknown")), TrieKey{Kind: TrieKeyAccount, AccountID: "alice"}).FindExactIter(store)
	defer exact.Release()
	if exact.Next() {
		t.Errorf("unexpected entry under the wrong block: %v", exact.Value())
	}
	if err := exact.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
}

func TestStateChangeIterator_FindExactIterSkipsLongerSiblingKeys(t *testing.T) {
	store := memory.NewStore()
	blockHash := common.Keccak256([]byte("block"))
	// "alice" is a byte prefix of "alicette"; a prefix scan alone would
	// return both.
	writeChangeEntry(t, store, blockHash, RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyAccount, AccountID: "alice"},
		Changes: []RawStateChange{{Cause: CauseTransactionProcessing, Data: []byte("a")}},
	})
	writeChangeEntry(t, store, blockHash, RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyAccount, AccountID: "alicette"},
		Changes: []RawStateChange{{Cause: CauseTransactionProcessing, Data: []byte("b")}},
	})

	queried := TrieKey{Kind: TrieKeyAccount, AccountID: "alice"}
	prefixIt := KeyFromTrieKey(blockHash, queried).FindIter(store)
	count := 0
	for prefixIt.Next() {
		count++
	}
	prefixIt.Release()
	if count != 2 {
		t.Fatalf("prefix scan should see both entries, saw %d", count)
	}

	it := KeyFromTrieKey(blockHash, queried).FindExactIter(store)
	defer it.Release()
	if !it.Next() {
		t.Fatalf("expected the exact entry, got none (error: %v)", it.Error())
	}
	if got := it.Value().TrieKey.AccountID; got != "alice" {
		t.Errorf("unexpected entry: %s", got)
	}
	if it.Next() {
		t.Errorf("exact scan leaked a sibling entry: %v", it.Value())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
}

func TestStateChangeIterator_EntriesAreDecodedFaithfully(t *testing.T) {
	store := memory.NewStore()
	blockHash := common.Keccak256([]byte("block"))
	entry := RawStateChangesWithTrieKey{
		TrieKey: TrieKey{Kind: TrieKeyContractData, AccountID: "alice", DataKey: []byte("slot")},
		Changes: []RawStateChange{
			{Cause: CauseTransactionProcessing, Data: []byte("v1")},
			{Cause: CauseReceiptProcessing, Deleted: true},
		},
	}
	writeChangeEntry(t, store, blockHash, entry)

	it := KeyForBlock(blockHash).FindIter(store)
	defer it.Release()
	if !it.Next() {
		t.Fatalf("expected one entry, got none (error: %v)", it.Error())
	}
	got := it.Value()
	if got.TrieKey.Kind != entry.TrieKey.Kind ||
		got.TrieKey.AccountID != entry.TrieKey.AccountID ||
		!bytes.Equal(got.TrieKey.DataKey, entry.TrieKey.DataKey) {
		t.Errorf("trie key mangled: %+v", got.TrieKey)
	}
	if len(got.Changes) != 2 {
		t.Fatalf("expected two changes, got %d", len(got.Changes))
	}
	if got.Changes[0].Cause != CauseTransactionProcessing || !bytes.Equal(got.Changes[0].Data, []byte("v1")) {
		t.Errorf("first change mangled: %+v", got.Changes[0])
	}
	if got.Changes[1].Cause != CauseReceiptProcessing || !got.Changes[1].Deleted {
		t.Errorf("second change mangled: %+v", got.Changes[1])
	}
}

func TestStateChangeIterator_MalformedEntriesAreReported(t *testing.T) {
	store := memory.NewStore()
	blockHash := common.Keccak256([]byte("block"))
	batch := storage.NewBatch()
	batch.Set(storage.ColumnStateChanges, KeyForBlock(blockHash).Bytes(), []byte("not rlp"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	it := KeyForBlock(blockHash).FindIter(store)
	defer it.Release()
	if it.Next() {
		t.Errorf("malformed entry should not be yielded")
	}
	if it.Error() == nil {
		t.Errorf("decoding failure should be reported")
	}
}
