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

// Package ledger implements the append-only, per-user hash-chained audit
// trail. Records live in the Badger store, physically separate from the
// mutable allocator tables, so hard-deleting a resource can never affect
// audit durability. There is no update or delete API
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/addrspace/database"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type LedgerConfig struct {
	Logger       *slog.Logger
	Database     database.Database
	PromRegistry prometheus.Registerer
}

// Ledger manages the per-user audit chains. Appends for the same user must be
// serialized to keep the chain well-defined; UserLock provides the per-user
// critical section. Different users' chains are fully independent
type Ledger struct {
	config        LedgerConfig
	userLocks     map[string]*sync.Mutex
	userLocksLock sync.Mutex
	metrics       ledgerMetrics
}

func New(cfg LedgerConfig) *Ledger {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	l := &Ledger{
		config:    cfg,
		userLocks: make(map[string]*sync.Mutex),
	}
	l.metrics.init(cfg.PromRegistry)
	return l
}

// UserLock returns the mutex serializing ledger appends for the given user.
// Callers hold it for the duration of the transaction performing the append
func (l *Ledger) UserLock(ownerUserId string) *sync.Mutex {
	l.userLocksLock.Lock()
	defer l.userLocksLock.Unlock()
	if m, ok := l.userLocks[ownerUserId]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.userLocks[ownerUserId] = m
	return m
}

// AppendTxn appends a record to the owner's chain within the given
// transaction. The record's PrevHash, Hash, AuditID, and Timestamp are filled
// in here. The caller must hold the owner's UserLock until the transaction
// finishes
func (l *Ledger) AppendTxn(txn *database.Txn, record *Record) error {
	if record.OwnerUserID == "" {
		return errors.New("record has no owner")
	}
	if record.AuditID == "" {
		record.AuditID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	// Load current chain head
	head, err := l.headTxn(txn, record.OwnerUserID)
	if err != nil {
		return err
	}
	if head.Seq == 0 {
		record.PrevHash = GenesisHash
	} else {
		record.PrevHash = head.Hash
	}
	record.Hash = record.ComputeHash()
	recordJson, err := json.Marshal(record)
	if err != nil {
		return err
	}
	seq := head.Seq + 1
	if err := txn.Ledger().Set(RecordKey(record.OwnerUserID, seq), recordJson); err != nil {
		return err
	}
	newHead := chainHead{
		Seq:  seq,
		Hash: record.Hash,
	}
	headJson, err := json.Marshal(newHead)
	if err != nil {
		return err
	}
	if err := txn.Ledger().Set(HeadKey(record.OwnerUserID), headJson); err != nil {
		return err
	}
	txn.OnCommit(func() {
		l.metrics.recordsAppended.WithLabelValues(record.EventType).Inc()
		l.config.Logger.Debug(
			fmt.Sprintf(
				"appended audit record %s (%s) at seq %d",
				record.AuditID,
				record.EventType,
				seq,
			),
			"component", "ledger",
			"user", record.OwnerUserID,
		)
	})
	return nil
}

// chainHead tracks the latest sequence number and hash for a user's chain
type chainHead struct {
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash"`
}

func (l *Ledger) headTxn(
	txn *database.Txn,
	ownerUserId string,
) (chainHead, error) {
	var head chainHead
	item, err := txn.Ledger().Get(HeadKey(ownerUserId))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return head, nil
		}
		return head, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return head, err
	}
	if err := json.Unmarshal(val, &head); err != nil {
		return head, err
	}
	return head, nil
}
