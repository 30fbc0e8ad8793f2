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
	"encoding/binary"
	"fmt"
)

// ShardUIdSize is the byte length of a serialized ShardUId.
const ShardUIdSize = 8

// ShardUId is the versioned identity of a shard. Two shards with the same
// ShardID but different versions (for instance before and after a shard
// layout change) are distinct and keep independent caches and state.
// ShardUIds are comparable and usable as map keys.
type ShardUId struct {
	Version uint32
	ShardID uint32
}

// Bytes returns the fixed-size serialized form of the identifier, used as
// a key prefix in the node storage column.
func (s ShardUId) Bytes() [ShardUIdSize]byte {
	var res [ShardUIdSize]byte
	binary.LittleEndian.PutUint32(res[0:4], s.Version)
	binary.LittleEndian.PutUint32(res[4:8], s.ShardID)
	return res
}

// ShardUIdFromBytes parses a serialized ShardUId. The input must be at
// least ShardUIdSize bytes long; extra bytes are ignored.
func ShardUIdFromBytes(data []byte) (ShardUId, error) {
	if len(data) < ShardUIdSize {
		return ShardUId{}, fmt.Errorf("invalid shard uid length %d, expected %d", len(data), ShardUIdSize)
	}
	return ShardUId{
		Version: binary.LittleEndian.Uint32(data[0:4]),
		ShardID: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// Compare orders identifiers by version, then shard id. It returns a
// negative number, zero, or a positive number when s sorts before, equal
// to, or after other.
func (s ShardUId) Compare(other ShardUId) int {
	if s.Version != other.Version {
		if s.Version < other.Version {
			return -1
		}
		return 1
	}
	if s.ShardID != other.ShardID {
		if s.ShardID < other.ShardID {
			return -1
		}
		return 1
	}
	return 0
}

func (s ShardUId) String() string {
	return fmt.Sprintf("s%d.v%d", s.ShardID, s.Version)
}
