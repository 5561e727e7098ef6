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

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Database provides access to the two underlying stores: the metadata DB
// (sqlite) holding the mutable allocator tables, and the ledger DB (Badger)
// holding the append-only audit chain
type Database interface {
	Close() error
	Metadata() *gorm.DB
	Ledger() *badger.DB
	Transaction(bool) *Txn
	updateCommitTimestamp(*Txn, int64) error
}

type BaseDatabase struct {
	logger          *slog.Logger
	metadata        *gorm.DB
	ledger          *badger.DB
	ledgerGcEnabled bool
	ledgerGcTimer   *time.Ticker
}

// Metadata returns the underlying metadata DB instance
func (b *BaseDatabase) Metadata() *gorm.DB {
	return b.metadata
}

// Ledger returns the underlying ledger DB instance
func (b *BaseDatabase) Ledger() *badger.DB {
	return b.ledger
}

// Transaction starts a new database transaction and returns a handle to it
func (b *BaseDatabase) Transaction(readWrite bool) *Txn {
	return NewTxn(b, readWrite)
}

// Close shuts down the underlying DB engines
func (b *BaseDatabase) Close() error {
	var ret error
	if b.ledgerGcTimer != nil {
		b.ledgerGcTimer.Stop()
	}
	// Close sqlite DB
	sqlDb, err := b.metadata.DB()
	if err != nil {
		ret = errors.Join(ret, err)
	} else {
		ret = errors.Join(ret, sqlDb.Close())
	}
	// Close badger DB
	ret = errors.Join(ret, b.ledger.Close())
	return ret
}

func (b *BaseDatabase) init() error {
	if b.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		b.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := b.metadata.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	// Configure metrics for Badger DB
	b.registerBadgerMetrics()
	// Check commit timestamp
	if err := b.checkCommitTimestamp(); err != nil {
		return err
	}
	// Run GC periodically for Badger DB
	if b.ledgerGcEnabled {
		b.ledgerGcTimer = time.NewTicker(5 * time.Minute)
		go b.ledgerGc()
	}
	return nil
}

func (b *BaseDatabase) ledgerGc() {
	for range b.ledgerGcTimer.C {
	again:
		err := b.ledger.RunValueLogGC(0.5)
		if err != nil {
			// Log any actual errors
			if !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn(
					fmt.Sprintf("ledger DB: GC failure: %s", err),
					"component", "database",
				)
			}
		} else {
			// Run it again if it just ran successfully
			goto again
		}
	}
}

// InMemoryDatabase stores all data in memory. Data will not be persisted
type InMemoryDatabase struct {
	*BaseDatabase
}

// NewInMemory creates a new in-memory database
func NewInMemory(logger *slog.Logger) (*InMemoryDatabase, error) {
	// Open sqlite DB
	metadataDb, err := gorm.Open(
		sqlite.Open("file::memory:?cache=shared"),
		&gorm.Config{
			Logger: gormlogger.Discard,
		},
	)
	if err != nil {
		return nil, err
	}
	// Open Badger DB
	badgerOpts := badger.DefaultOptions("").
		WithLogger(NewBadgerLogger(logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING).
		WithInMemory(true)
	ledgerDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	db := &InMemoryDatabase{
		BaseDatabase: &BaseDatabase{
			logger:   logger,
			metadata: metadataDb,
			ledger:   ledgerDb,
			// We disable badger GC when using an in-memory DB, since it will only throw errors
			ledgerGcEnabled: false,
		},
	}
	if err := db.init(); err != nil {
		return nil, err
	}
	return db, nil
}

// PersistentDatabase stores its data on disk, providing persistence across restarts
type PersistentDatabase struct {
	*BaseDatabase
	dataDir string
}

// NewPersistent creates a new persistent database instance using the provided data directory
func NewPersistent(
	dataDir string,
	logger *slog.Logger,
) (*PersistentDatabase, error) {
	// Make sure that we can read data dir, and create if it doesn't exist
	if _, err := os.Stat(dataDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read data dir: %w", err)
		}
		// Create data directory
		if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	// Open sqlite DB
	metadataDbPath := filepath.Join(
		dataDir,
		"metadata.sqlite",
	)
	metadataDb, err := gorm.Open(
		sqlite.Open(metadataDbPath),
		&gorm.Config{
			Logger: gormlogger.Discard,
		},
	)
	if err != nil {
		return nil, err
	}
	// Open Badger DB
	ledgerDir := filepath.Join(
		dataDir,
		"ledger",
	)
	badgerOpts := badger.DefaultOptions(ledgerDir).
		WithLogger(NewBadgerLogger(logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	ledgerDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	db := &PersistentDatabase{
		BaseDatabase: &BaseDatabase{
			logger:          logger,
			metadata:        metadataDb,
			ledger:          ledgerDb,
			ledgerGcEnabled: true,
		},
		dataDir: dataDir,
	}
	if err := db.init(); err != nil {
		return nil, err
	}
	return db, nil
}
