// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package memory

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Fantom-foundation/Mosaic/storage"
)

func TestMemoryStore_MissingKeysAreReported(t *testing.T) {
	store := NewStore()
	if _, err := store.Get(storage.ColumnMisc, []byte("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
	if exists, err := store.Has(storage.ColumnMisc, []byte("missing")); err != nil || exists {
		t.Errorf("missing key reported as present: %t, %v", exists, err)
	}
}

func TestMemoryStore_SetAndDeleteRoundTrip(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.Set(storage.ColumnMisc, []byte("key"), []byte("value"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	value, err := store.Get(storage.ColumnMisc, []byte("key"))
	if err != nil {
		t.Fatalf("failed to read written key: %v", err)
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("unexpected value: %x", value)
	}

	batch = storage.NewBatch()
	batch.Delete(storage.ColumnMisc, []byte("key"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Get(storage.ColumnMisc, []byte("key")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted key should be gone, got %v", err)
	}
}

func TestMemoryStore_ColumnsAreIsolated(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.Set(storage.ColumnMisc, []byte("key"), []byte("misc"))
	batch.Set(storage.ColumnStateChanges, []byte("key"), []byte("changes"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if value, _ := store.Get(storage.ColumnMisc, []byte("key")); !bytes.Equal(value, []byte("misc")) {
		t.Errorf("unexpected value in misc column: %x", value)
	}
	if value, _ := store.Get(storage.ColumnStateChanges, []byte("key")); !bytes.Equal(value, []byte("changes")) {
		t.Errorf("unexpected value in state-changes column: %x", value)
	}
}

func TestMemoryStore_RefcountedEntriesLiveWhileReferenced(t *testing.T) {
	store := NewStore()
	key := []byte("node")
	value := []byte("content")

	batch := storage.NewBatch()
	batch.IncrementRefcountBy(storage.ColumnState, key, value, 2)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	got, err := store.Get(storage.ColumnState, key)
	if err != nil {
		t.Fatalf("failed to read referenced node: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("refcount suffix leaked into payload: %x", got)
	}

	batch = storage.NewBatch()
	batch.DecrementRefcountBy(storage.ColumnState, key, 1)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Get(storage.ColumnState, key); err != nil {
		t.Errorf("node with remaining references should survive, got %v", err)
	}

	batch = storage.NewBatch()
	batch.DecrementRefcountBy(storage.ColumnState, key, 1)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Get(storage.ColumnState, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unreferenced node should be removed, got %v", err)
	}
}

func TestMemoryStore_RefcountOpsWithinOneBatchAreMerged(t *testing.T) {
	store := NewStore()
	key := []byte("node")
	batch := storage.NewBatch()
	batch.IncrementRefcountBy(storage.ColumnState, key, []byte("content"), 1)
	batch.IncrementRefcountBy(storage.ColumnState, key, []byte("content"), 1)
	batch.DecrementRefcountBy(storage.ColumnState, key, 1)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Get(storage.ColumnState, key); err != nil {
		t.Errorf("node should have one remaining reference, got %v", err)
	}

	batch = storage.NewBatch()
	batch.DecrementRefcountBy(storage.ColumnState, key, 1)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Get(storage.ColumnState, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("node should be removed, got %v", err)
	}
}

func TestMemoryStore_DeleteAllClearsOnlyTheGivenColumn(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.IncrementRefcountBy(storage.ColumnState, []byte("a"), []byte("1"), 1)
	batch.IncrementRefcountBy(storage.ColumnState, []byte("b"), []byte("2"), 1)
	batch.Set(storage.ColumnMisc, []byte("c"), []byte("3"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	batch = storage.NewBatch()
	batch.DeleteAll(storage.ColumnState)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	for _, key := range []string{"a", "b"} {
		if _, err := store.Get(storage.ColumnState, []byte(key)); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("state entry %s should be gone, got %v", key, err)
		}
	}
	if _, err := store.Get(storage.ColumnMisc, []byte("c")); err != nil {
		t.Errorf("other columns must not be touched, got %v", err)
	}
}

func TestMemoryStore_IteratorListsPrefixedEntriesInOrder(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.Set(storage.ColumnStateChanges, []byte("aa1"), []byte("v1"))
	batch.Set(storage.ColumnStateChanges, []byte("aa2"), []byte("v2"))
	batch.Set(storage.ColumnStateChanges, []byte("ab1"), []byte("v3"))
	batch.Set(storage.ColumnMisc, []byte("aa3"), []byte("v4"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	it := store.NewIterator(storage.ColumnStateChanges, []byte("aa"))
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "aa1" || keys[1] != "aa2" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestMemoryStore_IteratorStripsRefcounts(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.IncrementRefcountBy(storage.ColumnState, []byte("node"), []byte("content"), 7)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	it := store.NewIterator(storage.ColumnState, nil)
	defer it.Release()
	if !it.Next() {
		t.Fatalf("expected one entry")
	}
	if !bytes.Equal(it.Value(), []byte("content")) {
		t.Errorf("iterator leaked refcount suffix: %x", it.Value())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
}

func TestMemoryStore_IteratorIsASnapshot(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.Set(storage.ColumnMisc, []byte("a"), []byte("1"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	it := store.NewIterator(storage.ColumnMisc, nil)
	defer it.Release()

	batch = storage.NewBatch()
	batch.Set(storage.ColumnMisc, []byte("b"), []byte("2"))
	if err := store.Commit(batch); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	count := 0
	for it.Next() {
		count++
	}
	if count != 1 {
		t.Errorf("iterator should not see writes after its creation, saw %d entries", count)
	}
}

type failingObserver struct{}

func (failingObserver) UpdateCache([]storage.Op) error {
	return storage.ErrNotFound
}

func TestMemoryStore_CommitStopsWhenObserverFails(t *testing.T) {
	store := NewStore()
	batch := storage.NewBatch()
	batch.SetCacheObserver(failingObserver{})
	batch.Set(storage.ColumnMisc, []byte("key"), []byte("value"))
	if err := store.Commit(batch); err == nil {
		t.Fatalf("commit should propagate observer failures")
	}
	if _, err := store.Get(storage.ColumnMisc, []byte("key")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed commit must not write data, got %v", err)
	}
}
