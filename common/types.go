// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the byte length of a Hash.
const HashSize = 32

// Hash is a 32-byte cryptographic hash identifying a content-addressed
// piece of data, for instance a trie node or a stored value.
type Hash [HashSize]byte

// HashFromBytes creates a Hash from the given byte slice. The input must be
// exactly HashSize bytes long.
func HashFromBytes(data []byte) (Hash, error) {
	var h Hash
	if len(data) != HashSize {
		return h, fmt.Errorf("invalid hash length %d, expected %d", len(data), HashSize)
	}
	copy(h[:], data)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}
