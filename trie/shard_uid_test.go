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

import "testing"

func TestShardUId_SerializationRoundTrip(t *testing.T) {
	tests := []ShardUId{
		{},
		{Version: 1, ShardID: 0},
		{Version: 0, ShardID: 3},
		{Version: 1<<32 - 1, ShardID: 1<<32 - 1},
	}
	for _, shard := range tests {
		data := shard.Bytes()
		restored, err := ShardUIdFromBytes(data[:])
		if err != nil {
			t.Fatalf("failed to parse serialized shard uid: %v", err)
		}
		if restored != shard {
			t.Errorf("round trip mangled %v into %v", shard, restored)
		}
	}
}

func TestShardUId_ParsingRejectsShortInput(t *testing.T) {
	for _, size := range []int{0, 1, ShardUIdSize - 1} {
		if _, err := ShardUIdFromBytes(make([]byte, size)); err == nil {
			t.Errorf("input of %d bytes should be rejected", size)
		}
	}
}

func TestShardUId_ParsingIgnoresTrailingBytes(t *testing.T) {
	shard := ShardUId{Version: 2, ShardID: 5}
	data := shard.Bytes()
	restored, err := ShardUIdFromBytes(append(data[:], 0xFF, 0xFF))
	if err != nil {
		t.Fatalf("parsing failed: %v", err)
	}
	if restored != shard {
		t.Errorf("unexpected result: %v", restored)
	}
}

func TestShardUId_CompareOrdersByVersionThenShard(t *testing.T) {
	ordered := []ShardUId{
		{Version: 0, ShardID: 0},
		{Version: 0, ShardID: 1},
		{Version: 1, ShardID: 0},
		{Version: 1, ShardID: 2},
		{Version: 2, ShardID: 0},
	}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := ordered[i].Compare(ordered[j])
			switch {
			case i < j && got >= 0:
				t.Errorf("%v should sort before %v, got %d", ordered[i], ordered[j], got)
			case i > j && got <= 0:
				t.Errorf("%v should sort after %v, got %d", ordered[i], ordered[j], got)
			case i == j && got != 0:
				t.Errorf("%v should equal itself, got %d", ordered[i], got)
			}
		}
	}
}

func TestShardUId_StringNamesShardAndVersion(t *testing.T) {
	shard := ShardUId{Version: 3, ShardID: 7}
	if got, want := shard.String(), "s7.v3"; got != want {
		t.Errorf("unexpected string: got %s, want %s", got, want)
	}
}
