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

// OpKind enumerates the kinds of operations a Batch can carry.
type OpKind byte

const (
	// OpSet stores a plain value under a key, overwriting any previous one.
	OpSet OpKind = iota
	// OpDelete removes the entry for a key.
	OpDelete
	// OpDeleteAll removes every entry of a column.
	OpDeleteAll
	// OpUpdateRefcount adjusts the reference count of a refcounted entry
	// by Rc. Positive adjustments carry the payload bytes in Value so the
	// entry can be created if absent; negative adjustments carry no
	// payload. An entry whose count reaches zero is removed.
	OpUpdateRefcount
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "Set"
	case OpDelete:
		return "Delete"
	case OpDeleteAll:
		return "DeleteAll"
	case OpUpdateRefcount:
		return "UpdateRefcount"
	}
	return "Unknown"
}

// Op is one deferred operation of a batch.
type Op struct {
	Kind  OpKind
	Col   Column
	Key   []byte
	Value []byte
	Rc    int64
}

// CacheObserver is notified with the full operation list of a batch when
// the batch is committed, allowing in-memory caches to be synchronized
// with the about-to-be-durable state.
type CacheObserver interface {
	UpdateCache(ops []Op) error
}

// Batch accumulates operations to be applied in one atomic commit. It is
// pure in-memory bookkeeping; no I/O happens until a Store commits it.
// A Batch is not safe for concurrent use.
type Batch struct {
	ops      []Op
	observer CacheObserver
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set schedules storing the value under the key. The column must not be
// refcounted.
func (b *Batch) Set(col Column, key, value []byte) {
	if col.IsRefcounted() {
		panic("batch: Set on refcounted column " + col.String())
	}
	b.ops = append(b.ops, Op{Kind: OpSet, Col: col, Key: clone(key), Value: clone(value)})
}

// Delete schedules removal of the entry for the key. The column must not
// be refcounted.
func (b *Batch) Delete(col Column, key []byte) {
	if col.IsRefcounted() {
		panic("batch: Delete on refcounted column " + col.String())
	}
	b.ops = append(b.ops, Op{Kind: OpDelete, Col: col, Key: clone(key)})
}

// DeleteAll schedules removal of every entry of the column.
func (b *Batch) DeleteAll(col Column) {
	b.ops = append(b.ops, Op{Kind: OpDeleteAll, Col: col})
}

// IncrementRefcountBy schedules raising the reference count of the entry
// by delta, creating it with the given payload if absent. The column must
// be refcounted and delta must be positive.
func (b *Batch) IncrementRefcountBy(col Column, key, payload []byte, delta uint32) {
	if !col.IsRefcounted() {
		panic("batch: refcount increment on non-refcounted column " + col.String())
	}
	if delta == 0 {
		panic("batch: zero refcount increment")
	}
	b.ops = append(b.ops, Op{Kind: OpUpdateRefcount, Col: col, Key: clone(key), Value: clone(payload), Rc: int64(delta)})
}

// DecrementRefcountBy schedules lowering the reference count of the entry
// by delta. The column must be refcounted and delta must be positive.
func (b *Batch) DecrementRefcountBy(col Column, key []byte, delta uint32) {
	if !col.IsRefcounted() {
		panic("batch: refcount decrement on non-refcounted column " + col.String())
	}
	if delta == 0 {
		panic("batch: zero refcount decrement")
	}
	b.ops = append(b.ops, Op{Kind: OpUpdateRefcount, Col: col, Key: clone(key), Rc: -int64(delta)})
}

// SetCacheObserver attaches the observer to be notified when this batch is
// committed. Attaching two different observers to one batch is a
// programming error; attaching the same observer again is a no-op.
func (b *Batch) SetCacheObserver(observer CacheObserver) {
	if b.observer != nil && b.observer != observer {
		panic("batch: conflicting cache observers attached")
	}
	b.observer = observer
}

// NotifyObserver invokes the attached observer, if any, with the batch's
// operations. It is called by Store implementations at commit time.
func (b *Batch) NotifyObserver() error {
	if b.observer == nil {
		return nil
	}
	return b.observer.UpdateCache(b.ops)
}

// Ops exposes the accumulated operations in program order. The returned
// slice is owned by the batch and must not be modified.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of accumulated operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	res := make([]byte, len(data))
	copy(res, data)
	return res
}
