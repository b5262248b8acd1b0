// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"encoding/binary"
	"errors"
	"slices"
)

const (
	// EventBlobKeyPrefix prefixes journal entries, which are keyed by
	// campaign id and then journal sequence
	EventBlobKeyPrefix = "ev"
	// EventSequenceKey holds the badger sequence used to order journal
	// entries across campaigns
	EventSequenceKey = "seq_events"
)

func Uint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

// EventBlobPrefix returns the key prefix of all journal entries for a
// campaign
func EventBlobPrefix(campaignID uint64) []byte {
	return slices.Concat([]byte(EventBlobKeyPrefix), Uint64ToBytes(campaignID))
}

func EventBlobKey(campaignID uint64, seq uint64) []byte {
	return slices.Concat(EventBlobPrefix(campaignID), Uint64ToBytes(seq))
}

// ParseEventBlobKey returns the campaign id and sequence encoded in key
func ParseEventBlobKey(key []byte) (uint64, uint64, error) {
	prefixLen := len(EventBlobKeyPrefix)
	if len(key) != prefixLen+16 ||
		string(key[:prefixLen]) != EventBlobKeyPrefix {
		return 0, 0, errors.New("invalid event key")
	}
	campaignID := binary.BigEndian.Uint64(key[prefixLen : prefixLen+8])
	seq := binary.BigEndian.Uint64(key[prefixLen+8:])
	return campaignID, seq, nil
}
