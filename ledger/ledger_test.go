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

package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/ledger"
	badger "github.com/dgraph-io/badger/v4"
)

func newTestLedger(t *testing.T) (database.Database, *ledger.Ledger) {
	t.Helper()
	db, err := database.NewInMemory(nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	l := ledger.New(ledger.LedgerConfig{
		Database: db,
	})
	return db, l
}

func appendRecord(
	t *testing.T,
	db database.Database,
	l *ledger.Ledger,
	record ledger.Record,
) ledger.Record {
	t.Helper()
	userLock := l.UserLock(record.OwnerUserID)
	userLock.Lock()
	defer userLock.Unlock()
	txn := db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		return l.AppendTxn(txn, &record)
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return record
}

func TestLedgerChainLinkage(t *testing.T) {
	db, l := newTestLedger(t)
	var appended []ledger.Record
	for _, eventType := range []string{
		"region.allocate",
		"host.allocate",
		"host.release",
	} {
		appended = append(
			appended,
			appendRecord(t, db, l, ledger.Record{
				OwnerUserID:  "user-1",
				EventType:    eventType,
				ResourceType: "host",
				ResourceID:   "resource-1",
				Actor:        "tester",
			}),
		)
	}
	records, err := l.Query("user-1", ledger.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(records) != 3 {
		t.Fatalf("did not get expected record count, got %d, wanted 3", len(records))
	}
	if records[0].PrevHash != ledger.GenesisHash {
		t.Fatalf(
			"first record prev_hash not genesis, got %s",
			records[0].PrevHash,
		)
	}
	for i, record := range records {
		if record.EventType != appended[i].EventType {
			t.Fatalf(
				"records out of order, got %s at %d, wanted %s",
				record.EventType,
				i,
				appended[i].EventType,
			)
		}
		if record.ComputeHash() != record.Hash {
			t.Fatalf("record %s hash mismatch", record.AuditID)
		}
		if i > 0 && record.PrevHash != records[i-1].Hash {
			t.Fatalf("record %s not linked to predecessor", record.AuditID)
		}
	}
}

func TestLedgerQueryFilter(t *testing.T) {
	db, l := newTestLedger(t)
	appendRecord(t, db, l, ledger.Record{
		OwnerUserID:  "user-1",
		EventType:    "region.allocate",
		ResourceType: "region",
		ResourceID:   "region-1",
		Actor:        "tester",
	})
	appendRecord(t, db, l, ledger.Record{
		OwnerUserID:  "user-1",
		EventType:    "host.allocate",
		ResourceType: "host",
		ResourceID:   "host-1",
		Actor:        "tester",
	})
	appendRecord(t, db, l, ledger.Record{
		OwnerUserID:  "user-1",
		EventType:    "host.release",
		ResourceType: "host",
		ResourceID:   "host-1",
		Actor:        "tester",
	})
	records, err := l.Query("user-1", ledger.Filter{
		EventTypes: []string{"host.allocate", "host.release"},
		ResourceID: "host-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(records) != 2 {
		t.Fatalf("did not get expected record count, got %d, wanted 2", len(records))
	}
	records, err = l.Query("user-1", ledger.Filter{ResourceType: "region"})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(records) != 1 || records[0].ResourceID != "region-1" {
		t.Fatalf("did not get expected records, got %+v", records)
	}
}

func TestLedgerUserIsolation(t *testing.T) {
	db, l := newTestLedger(t)
	appendRecord(t, db, l, ledger.Record{
		OwnerUserID:  "user-1",
		EventType:    "region.allocate",
		ResourceType: "region",
		ResourceID:   "region-1",
		Actor:        "tester",
	})
	appendRecord(t, db, l, ledger.Record{
		OwnerUserID:  "user-2",
		EventType:    "region.allocate",
		ResourceType: "region",
		ResourceID:   "region-2",
		Actor:        "tester",
	})
	records, err := l.Query("user-2", ledger.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(records) != 1 || records[0].ResourceID != "region-2" {
		t.Fatalf("did not get expected records, got %+v", records)
	}
	// Both chains start at genesis
	if records[0].PrevHash != ledger.GenesisHash {
		t.Fatalf(
			"first record prev_hash not genesis, got %s",
			records[0].PrevHash,
		)
	}
}

func TestLedgerVerifyDetectsTampering(t *testing.T) {
	db, l := newTestLedger(t)
	var appended []ledger.Record
	for i := 0; i < 3; i++ {
		appended = append(
			appended,
			appendRecord(t, db, l, ledger.Record{
				OwnerUserID:  "user-1",
				EventType:    "region.allocate",
				ResourceType: "region",
				ResourceID:   "region-1",
				Actor:        "tester",
			}),
		)
	}
	report, err := l.Verify("user-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !report.Ok() || report.TotalChecked != 3 {
		t.Fatalf("expected intact chain, got %+v", report)
	}
	// Rewrite the second record's payload behind the ledger's back, keeping
	// the stored hash
	tampered := appended[1]
	tampered.Actor = "mallory"
	tamperedJson, err := json.Marshal(tampered)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	err = db.Ledger().Update(func(txn *badger.Txn) error {
		return txn.Set(ledger.RecordKey("user-1", 2), tamperedJson)
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	report, err = l.Verify("user-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if report.Ok() {
		t.Fatalf("tampered chain verified clean")
	}
	if len(report.CorruptedRecords) != 1 ||
		report.CorruptedRecords[0] != appended[1].AuditID {
		t.Fatalf(
			"did not flag expected record, got %v, wanted [%s]",
			report.CorruptedRecords,
			appended[1].AuditID,
		)
	}
}
