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

// Package addrspace implements a hierarchical address-space allocator for a
// private IPv4 range. Every user owns an independent, identically-shaped
// address space: global range, country block, region block, host address.
// Allocation is collision-free under concurrent callers, quota limits are
// enforced exactly, reservations convert into allocations, and every state
// transition lands in a tamper-evident audit ledger
package addrspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/event"
	"github.com/blinklabs-io/addrspace/ledger"
	"github.com/blinklabs-io/addrspace/models"
)

// Allocator is the address-space allocation service. It is a stateless layer
// over the shared durable store; any number of goroutines may invoke it
// concurrently
type Allocator struct {
	config        Config
	db            database.Database
	eventBus      *event.EventBus
	auditLedger   *ledger.Ledger
	metrics       allocatorMetrics
	shutdownFuncs []func(context.Context) error
	sweepTimer    *time.Timer
	sweepMutex    sync.Mutex
	closed        bool
}

// New creates a new Allocator with the specified config
func New(cfg Config) (*Allocator, error) {
	a := &Allocator{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry),
	}
	if cfg.countryTable == nil {
		return nil, fmt.Errorf("no country table configured")
	}
	// Open database
	if cfg.dataDir == "" {
		db, err := database.NewInMemory(cfg.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
	} else {
		db, err := database.NewPersistent(cfg.dataDir, cfg.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
	}
	// Create the table schemas
	for _, model := range models.MigrateModels {
		if err := a.db.Metadata().AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	a.auditLedger = ledger.New(
		ledger.LedgerConfig{
			Logger:       cfg.logger,
			Database:     a.db,
			PromRegistry: cfg.promRegistry,
		},
	)
	// Init metrics
	a.metrics.init(cfg.promRegistry)
	// Setup tracing
	if cfg.tracing {
		if err := a.setupTracing(); err != nil {
			return nil, err
		}
	}
	// Schedule periodic sweep of expired reservations
	a.scheduleReservationSweep()
	return a, nil
}

// EventBus returns the bus carrying allocator events. External collaborators
// (webhook delivery, dashboards) subscribe here rather than polling
func (a *Allocator) EventBus() *event.EventBus {
	return a.eventBus
}

// Database returns the underlying database instance
func (a *Allocator) Database() database.Database {
	return a.db
}

// Close shuts down the allocator and the underlying database
func (a *Allocator) Close() error {
	a.sweepMutex.Lock()
	a.closed = true
	if a.sweepTimer != nil {
		a.sweepTimer.Stop()
	}
	a.sweepMutex.Unlock()
	for _, shutdown := range a.shutdownFuncs {
		if err := shutdown(context.TODO()); err != nil {
			a.config.logger.Error(
				fmt.Sprintf("shutdown failure: %s", err),
				"component", "allocator",
			)
		}
	}
	return a.db.Close()
}

// userTxn runs fn inside a read-write transaction while holding the user's
// ledger lock, which serializes audit appends (and therefore claims) for a
// single user. Different users proceed in parallel
func (a *Allocator) userTxn(
	ownerUserId string,
	fn func(*database.Txn) error,
) error {
	userLock := a.auditLedger.UserLock(ownerUserId)
	userLock.Lock()
	defer userLock.Unlock()
	txn := a.db.Transaction(true)
	return txn.Do(fn)
}
