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

// TrieKeyKind enumerates the key spaces of the state trie. The kind byte
// is the first byte of every canonical trie key.
type TrieKeyKind byte

const (
	// TrieKeyAccount keys the top-level record of an account.
	TrieKeyAccount TrieKeyKind = 0
	// TrieKeyContractCode keys the contract code deployed to an account.
	TrieKeyContractCode TrieKeyKind = 1
	// TrieKeyAccessKey keys one access key of an account.
	TrieKeyAccessKey TrieKeyKind = 2
	// TrieKeyReceivedData keys data received for a yet-unprocessed receipt.
	TrieKeyReceivedData TrieKeyKind = 3
	// TrieKeyPostponedReceiptID keys the id of a postponed receipt.
	TrieKeyPostponedReceiptID TrieKeyKind = 4
	// TrieKeyPendingDataCount keys the number of data items a postponed
	// receipt still waits for.
	TrieKeyPendingDataCount TrieKeyKind = 5
	// TrieKeyPostponedReceipt keys a receipt waiting for data.
	TrieKeyPostponedReceipt TrieKeyKind = 6
	// TrieKeyDelayedReceiptIndices keys the queue bounds of delayed
	// receipts; a singleton per shard.
	TrieKeyDelayedReceiptIndices TrieKeyKind = 7
	// TrieKeyDelayedReceipt keys one entry of the delayed receipt queue.
	TrieKeyDelayedReceipt TrieKeyKind = 8
	// TrieKeyContractData keys one storage entry of a contract.
	TrieKeyContractData TrieKeyKind = 9
)

const (
	// accessKeySeparator splits the account id from the public key in
	// access key entries.
	accessKeySeparator = byte(TrieKeyAccessKey)
	// accountDataSeparator splits the account id from the data key in
	// account-scoped entries.
	accountDataSeparator = byte(',')
	// delayedReceiptIndexSize is the byte length of a delayed receipt
	// queue index.
	delayedReceiptIndexSize = 8
)

// TrieKey is the structured form of a state trie key. Which fields are
// meaningful depends on the Kind; unused fields are ignored by the
// canonical encoding.
type TrieKey struct {
	Kind      TrieKeyKind
	AccountID string
	PublicKey []byte
	DataKey   []byte
	Index     uint64
}

// Append writes the canonical byte encoding of the key to dst and returns
// the extended slice.
func (k TrieKey) Append(dst []byte) []byte {
	dst = append(dst, byte(k.Kind))
	switch k.Kind {
	case TrieKeyAccount, TrieKeyContractCode:
		dst = append(dst, k.AccountID...)
	case TrieKeyAccessKey:
		dst = append(dst, k.AccountID...)
		dst = append(dst, accessKeySeparator)
		dst = append(dst, k.PublicKey...)
	case TrieKeyReceivedData, TrieKeyPostponedReceiptID, TrieKeyPendingDataCount, TrieKeyPostponedReceipt, TrieKeyContractData:
		dst = append(dst, k.AccountID...)
		dst = append(dst, accountDataSeparator)
		dst = append(dst, k.DataKey...)
	case TrieKeyDelayedReceiptIndices:
		// the kind byte alone
	case TrieKeyDelayedReceipt:
		var index [delayedReceiptIndexSize]byte
		binary.LittleEndian.PutUint64(index[:], k.Index)
		dst = append(dst, index[:]...)
	default:
		panic(fmt.Sprintf("unknown trie key kind %d", k.Kind))
	}
	return dst
}

// Bytes returns the canonical byte encoding of the key.
func (k TrieKey) Bytes() []byte {
	return k.Append(make([]byte, 0, k.Len()))
}

// Len returns the length of the canonical byte encoding.
func (k TrieKey) Len() int {
	switch k.Kind {
	case TrieKeyAccount, TrieKeyContractCode:
		return 1 + len(k.AccountID)
	case TrieKeyAccessKey:
		return 1 + len(k.AccountID) + 1 + len(k.PublicKey)
	case TrieKeyReceivedData, TrieKeyPostponedReceiptID, TrieKeyPendingDataCount, TrieKeyPostponedReceipt, TrieKeyContractData:
		return 1 + len(k.AccountID) + 1 + len(k.DataKey)
	case TrieKeyDelayedReceiptIndices:
		return 1
	case TrieKeyDelayedReceipt:
		return 1 + delayedReceiptIndexSize
	}
	panic(fmt.Sprintf("unknown trie key kind %d", k.Kind))
}

// reportableForClients indicates whether changes to this key are recorded
// in the durable change log served to clients. Only account-scoped entries
// are; logging the remaining kinds could produce key conflicts when a node
// tracks multiple shards.
func (k TrieKey) reportableForClients() bool {
	switch k.Kind {
	case TrieKeyAccount, TrieKeyContractCode, TrieKeyAccessKey, TrieKeyContractData:
		return true
	}
	return false
}
