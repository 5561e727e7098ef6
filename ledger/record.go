// Copyright 2024 Blink Labs Software
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

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"time"
)

// GenesisHash is the prev_hash value of the first record in every user's chain
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is a single immutable entry in a user's audit chain. The hash covers
// the canonical JSON serialization of the record with an empty hash field,
// which includes prev_hash and thereby links the chain
type Record struct {
	AuditID      string          `json:"audit_id"`
	OwnerUserID  string          `json:"owner_user_id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	Actor        string          `json:"actor"`
	Reason       string          `json:"reason,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	PrevHash     string          `json:"prev_hash"`
	Hash         string          `json:"hash,omitempty"`
}

// ComputeHash returns the expected hash for the record. Struct field order
// makes the JSON serialization canonical; the hash field itself is excluded
// via omitempty
func (r Record) ComputeHash() string {
	tmpRecord := r
	tmpRecord.Hash = ""
	recordJson, err := json.Marshal(tmpRecord)
	if err != nil {
		// Record fields are all marshalable types
		panic(err)
	}
	hash := sha256.Sum256(recordJson)
	return hex.EncodeToString(hash[:])
}

// RecordKey builds the ledger DB key for a record. The NUL separator keeps
// one user's key range from being a prefix of another's
func RecordKey(ownerUserId string, seq uint64) []byte {
	key := []byte("a")
	key = append(key, []byte(ownerUserId)...)
	key = append(key, 0x0)
	// Convert sequence to bytes
	seqBytes := make([]byte, 8)
	new(big.Int).SetUint64(seq).FillBytes(seqBytes)
	key = append(key, seqBytes...)
	return key
}

// RecordKeyPrefix builds the ledger DB key prefix covering all of a user's
// records in sequence order
func RecordKeyPrefix(ownerUserId string) []byte {
	key := []byte("a")
	key = append(key, []byte(ownerUserId)...)
	key = append(key, 0x0)
	return key
}

// HeadKey builds the ledger DB key for a user's chain head
func HeadKey(ownerUserId string) []byte {
	key := []byte("h")
	key = append(key, []byte(ownerUserId)...)
	return key
}
