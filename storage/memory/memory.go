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
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/Fantom-foundation/Mosaic/storage"
)

// Store is an in-memory storage.Store implementation. It is used in tests
// and for ephemeral setups where no durability is needed.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte // full key (column byte ++ key) -> raw value
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: map[string][]byte{}}
}

func (s *Store) Get(col storage.Column, key []byte) ([]byte, error) {
	s.mu.RLock()
	raw, exists := s.data[string(dbKey(col, key))]
	s.mu.RUnlock()
	if !exists {
		return nil, storage.ErrNotFound
	}
	if col.IsRefcounted() {
		payload, _, err := storage.DecodeRefcounted(raw)
		if err != nil {
			return nil, err
		}
		return clone(payload), nil
	}
	return clone(raw), nil
}

func (s *Store) Has(col storage.Column, key []byte) (bool, error) {
	s.mu.RLock()
	_, exists := s.data[string(dbKey(col, key))]
	s.mu.RUnlock()
	return exists, nil
}

func (s *Store) NewIterator(col storage.Column, prefix []byte) storage.Iterator {
	fullPrefix := string(dbKey(col, prefix))
	s.mu.RLock()
	keys := make([]string, 0, 16)
	for key := range s.data {
		if strings.HasPrefix(key, fullPrefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = clone(s.data[key])
	}
	s.mu.RUnlock()
	return &iterator{col: col, keys: keys, values: values, pos: -1}
}

func (s *Store) Commit(batch *storage.Batch) error {
	if err := batch.NotifyObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage all mutations first so a malformed batch leaves the store
	// untouched.
	overlay := newOverlay(s.data)
	for _, op := range batch.Ops() {
		if err := overlay.apply(op); err != nil {
			return fmt.Errorf("failed to stage %s operation; %w", op.Kind, err)
		}
	}
	overlay.flush(s.data)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func dbKey(col storage.Column, key []byte) []byte {
	res := make([]byte, 0, 1+len(key))
	res = append(res, byte(col))
	return append(res, key...)
}

func clone(data []byte) []byte {
	res := make([]byte, len(data))
	copy(res, data)
	return res
}

// overlay stages the effects of a batch on top of the store content.
type overlay struct {
	base    map[string][]byte
	changes map[string][]byte // nil value = tombstone
}

func newOverlay(base map[string][]byte) *overlay {
	return &overlay{base: base, changes: map[string][]byte{}}
}

func (o *overlay) get(key string) []byte {
	if value, exists := o.changes[key]; exists {
		return value
	}
	return o.base[key]
}

func (o *overlay) apply(op storage.Op) error {
	switch op.Kind {
	case storage.OpSet:
		o.changes[string(dbKey(op.Col, op.Key))] = op.Value
	case storage.OpDelete:
		o.changes[string(dbKey(op.Col, op.Key))] = nil
	case storage.OpDeleteAll:
		for key := range o.base {
			if len(key) > 0 && key[0] == byte(op.Col) {
				o.changes[key] = nil
			}
		}
		for key, value := range o.changes {
			if len(key) > 0 && key[0] == byte(op.Col) && value != nil {
				o.changes[key] = nil
			}
		}
	case storage.OpUpdateRefcount:
		key := string(dbKey(op.Col, op.Key))
		merged, err := storage.MergeRefcounted(o.get(key), op)
		if err != nil {
			return err
		}
		o.changes[key] = merged
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
	return nil
}

func (o *overlay) flush(target map[string][]byte) {
	for key, value := range o.changes {
		if value == nil {
			delete(target, key)
		} else {
			target[key] = value
		}
	}
}

// iterator walks a sorted snapshot of matching entries.
type iterator struct {
	col    storage.Column
	keys   []string
	values [][]byte
	pos    int
	err    error
}

func (it *iterator) Next() bool {
	if it.pos+1 >= len(it.keys) {
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Key() []byte {
	// Strip the column prefix byte.
	return []byte(it.keys[it.pos])[1:]
}

func (it *iterator) Value() []byte {
	raw := it.values[it.pos]
	if it.col.IsRefcounted() {
		payload, _, err := storage.DecodeRefcounted(raw)
		if err != nil {
			it.err = err
			return nil
		}
		return payload
	}
	return raw
}

func (it *iterator) Release() {
	it.keys = nil
	it.values = nil
}

func (it *iterator) Error() error {
	return it.err
}
