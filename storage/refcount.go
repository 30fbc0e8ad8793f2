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

import (
	"encoding/binary"
	"fmt"
)

// Values of refcounted columns are stored as the payload followed by a
// signed 64-bit little-endian reference count. The payload of an entry is
// immutable for its lifetime; only the trailing count changes.

const refcountSize = 8

// EncodeRefcounted appends the reference count to the payload, producing
// the raw representation stored on disk.
func EncodeRefcounted(payload []byte, rc int64) []byte {
	res := make([]byte, len(payload)+refcountSize)
	copy(res, payload)
	binary.LittleEndian.PutUint64(res[len(payload):], uint64(rc))
	return res
}

// DecodeRefcounted splits a raw stored value into payload and reference
// count.
func DecodeRefcounted(raw []byte) (payload []byte, rc int64, err error) {
	if len(raw) < refcountSize {
		return nil, 0, fmt.Errorf("refcounted value too short: %d bytes", len(raw))
	}
	payload = raw[:len(raw)-refcountSize]
	rc = int64(binary.LittleEndian.Uint64(raw[len(raw)-refcountSize:]))
	return payload, rc, nil
}

// MergeRefcounted combines the existing raw value of an entry (nil if
// absent) with a refcount operation, returning the new raw value or nil
// if the entry's count dropped to zero or below and it is to be removed.
// The payload of an existing entry always wins over the payload of the
// operation; the two are expected to be identical for content-addressed
// data.
func MergeRefcounted(existing []byte, op Op) ([]byte, error) {
	if op.Kind != OpUpdateRefcount {
		return nil, fmt.Errorf("cannot merge operation of kind %s", op.Kind)
	}
	payload := op.Value
	rc := op.Rc
	if existing != nil {
		var existingRc int64
		var err error
		payload, existingRc, err = DecodeRefcounted(existing)
		if err != nil {
			return nil, err
		}
		rc += existingRc
	}
	if rc <= 0 {
		return nil, nil
	}
	return EncodeRefcounted(payload, rc), nil
}
