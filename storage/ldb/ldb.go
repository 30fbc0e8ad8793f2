// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/Fantom-foundation/Mosaic/storage"
)

// Store is a storage.Store implementation persisting data in LevelDB.
// Columns are mapped to key prefixes; batch commits are translated into
// atomic LevelDB batch writes.
type Store struct {
	db      *leveldb.DB
	writeMu sync.Mutex // serializes commits; refcount merges read-modify-write
}

// OpenStore opens (or creates) a LevelDB-backed store in the given
// directory.
func OpenStore(path string, options *opt.Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB at %s; %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(col storage.Column, key []byte) ([]byte, error) {
	raw, err := s.db.Get(dbKey(col, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if col.IsRefcounted() {
		payload, _, err := storage.DecodeRefcounted(raw)
		if err != nil {
			return nil, err
		}
		return payload, nil
	}
	return raw, nil
}

func (s *Store) Has(col storage.Column, key []byte) (bool, error) {
	return s.db.Has(dbKey(col, key), nil)
}

func (s *Store) NewIterator(col storage.Column, prefix []byte) storage.Iterator {
	it := s.db.NewIterator(util.BytesPrefix(dbKey(col, prefix)), nil)
	return &iterator{col: col, it: it}
}

func (s *Store) Commit(batch *storage.Batch) error {
	if err := batch.NotifyObserver(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Refcount updates and delete-alls depend on the current content, so
	// the operations are resolved into plain puts and deletes first. The
	// overlay keeps ops within one batch consistent with each other.
	write := new(leveldb.Batch)
	overlay := map[string][]byte{}
	for _, op := range batch.Ops() {
		switch op.Kind {
		case storage.OpSet:
			key := dbKey(op.Col, op.Key)
			write.Put(key, op.Value)
			overlay[string(key)] = op.Value
		case storage.OpDelete:
			key := dbKey(op.Col, op.Key)
			write.Delete(key)
			overlay[string(key)] = nil
		case storage.OpDeleteAll:
			it := s.db.NewIterator(util.BytesPrefix([]byte{byte(op.Col)}), nil)
			for it.Next() {
				key := make([]byte, len(it.Key()))
				copy(key, it.Key())
				write.Delete(key)
				overlay[string(key)] = nil
			}
			err := it.Error()
			it.Release()
			if err != nil {
				return fmt.Errorf("failed to scan column %s for removal; %w", op.Col, err)
			}
			for key, value := range overlay {
				if len(key) > 0 && key[0] == byte(op.Col) && value != nil {
					write.Delete([]byte(key))
					overlay[key] = nil
				}
			}
		case storage.OpUpdateRefcount:
			key := dbKey(op.Col, op.Key)
			existing, tracked := overlay[string(key)]
			if !tracked {
				raw, err := s.db.Get(key, nil)
				if err != nil && err != leveldb.ErrNotFound {
					return fmt.Errorf("failed to read current refcount; %w", err)
				}
				existing = raw
			}
			merged, err := storage.MergeRefcounted(existing, op)
			if err != nil {
				return err
			}
			if merged == nil {
				write.Delete(key)
			} else {
				write.Put(key, merged)
			}
			overlay[string(key)] = merged
		default:
			return fmt.Errorf("unknown operation kind %d", op.Kind)
		}
	}
	return s.db.Write(write, nil)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func dbKey(col storage.Column, key []byte) []byte {
	res := make([]byte, 0, 1+len(key))
	res = append(res, byte(col))
	return append(res, key...)
}

// iterator adapts a LevelDB iterator to the storage.Iterator contract,
// stripping the column prefix from keys and the reference count from
// values of refcounted columns.
type iterator struct {
	col storage.Column
	it  ldbIterator
	err error
}

// ldbIterator is the subset of the LevelDB iterator interface in use.
type ldbIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

func (it *iterator) Next() bool {
	return it.it.Next()
}

func (it *iterator) Key() []byte {
	// LevelDB reuses the key buffer; hand out a copy without the column
	// prefix byte.
	key := it.it.Key()
	res := make([]byte, len(key)-1)
	copy(res, key[1:])
	return res
}

func (it *iterator) Value() []byte {
	value := it.it.Value()
	res := make([]byte, len(value))
	copy(res, value)
	if it.col.IsRefcounted() {
		payload, _, err := storage.DecodeRefcounted(res)
		if err != nil {
			it.err = err
			return nil
		}
		return payload
	}
	return res
}

func (it *iterator) Release() {
	it.it.Release()
}

func (it *iterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.it.Error()
}
