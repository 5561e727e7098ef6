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

package addrspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/addrspace/capacity"
	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/event"
	"github.com/blinklabs-io/addrspace/ledger"
	"github.com/blinklabs-io/addrspace/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// claimRetryLimit bounds how many times a claim is retried after losing
	// a coordinate race before the operation fails with
	// ErrAllocationContention
	claimRetryLimit = 16

	// claimBackoffBase and claimBackoffMax shape the exponential backoff
	// between claim retries
	claimBackoffBase = 2 * time.Millisecond
	claimBackoffMax  = 256 * time.Millisecond
)

// RegionParams carries caller-provided metadata for a new region
type RegionParams struct {
	Name       string
	OwnerLabel string
	Tags       map[string]string
	Actor      string
}

// HostParams carries caller-provided metadata for a new host
type HostParams struct {
	Hostname   string
	DeviceType string
	Tags       map[string]string
	Notes      string
	Actor      string
}

// AllocateRegion claims the lowest free (x, y) coordinate within the named
// country for the user and creates an active region there
func (a *Allocator) AllocateRegion(
	ownerUserId string,
	countryName string,
	params RegionParams,
) (models.Region, error) {
	var ret models.Region
	country, ok := a.config.countryTable.ByName(countryName)
	if !ok {
		return ret, ErrUnknownCountry
	}
	err := a.claimWithRetry(ownerUserId, func(txn *database.Txn) error {
		x, y, err := capacity.NextFreeRegion(txn, ownerUserId, country)
		if err != nil {
			if errors.Is(err, capacity.ErrExhausted) {
				a.metrics.capacityExhausted.
					WithLabelValues(string(models.ResourceTypeRegion)).Inc()
				return ErrCapacityExhausted
			}
			return err
		}
		region := models.Region{
			ID:          uuid.NewString(),
			OwnerUserID: ownerUserId,
			Country:     country.Name,
			XOctet:      x,
			YOctet:      y,
			Name:        params.Name,
			Status:      models.RegionStatusActive,
			OwnerLabel:  params.OwnerLabel,
			Tags:        params.Tags,
			CreatedBy:   params.Actor,
			UpdatedBy:   params.Actor,
		}
		claim := models.Claim{
			OwnerUserID: ownerUserId,
			XOctet:      x,
			YOctet:      y,
			ZOctet:      0,
			Kind:        models.ClaimKindRegion,
			ResourceID:  region.ID,
		}
		if err := a.claimCoordinate(txn, &claim); err != nil {
			return err
		}
		if err := a.reserveQuota(txn, ownerUserId, models.ResourceTypeRegion); err != nil {
			return err
		}
		if err := models.RegionCreateTxn(txn, &region); err != nil {
			return err
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(RegionAllocateEventType),
				ResourceType: string(models.ResourceTypeRegion),
				ResourceID:   region.ID,
				After:        mustJson(region),
				Actor:        params.Actor,
			},
		)
		if err != nil {
			return err
		}
		ret = region
		txn.OnCommit(func() {
			a.metrics.claims.
				WithLabelValues(string(models.ResourceTypeRegion)).Inc()
			a.publishResourceEvent(
				RegionAllocateEventType,
				ownerUserId,
				models.ResourceTypeRegion,
				region.ID,
				auditId,
				fmt.Sprintf("10.%d.%d.0/24", x, y),
			)
		})
		return nil
	})
	if err != nil {
		return models.Region{}, err
	}
	return ret, nil
}

// AllocateHost claims the lowest free z octet within the region for the user
// and creates an active host there
func (a *Allocator) AllocateHost(
	ownerUserId string,
	regionId string,
	params HostParams,
) (models.Host, error) {
	var ret models.Host
	err := a.claimWithRetry(ownerUserId, func(txn *database.Txn) error {
		region, err := models.RegionByIdTxn(txn, regionId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if region.OwnerUserID != ownerUserId {
			return ErrNotFound
		}
		z, err := capacity.NextFreeHost(
			txn,
			ownerUserId,
			region.XOctet,
			region.YOctet,
		)
		if err != nil {
			if errors.Is(err, capacity.ErrExhausted) {
				a.metrics.capacityExhausted.
					WithLabelValues(string(models.ResourceTypeHost)).Inc()
				return ErrCapacityExhausted
			}
			return err
		}
		host := models.Host{
			ID:          uuid.NewString(),
			OwnerUserID: ownerUserId,
			RegionID:    region.ID,
			XOctet:      region.XOctet,
			YOctet:      region.YOctet,
			ZOctet:      z,
			Hostname:    params.Hostname,
			DeviceType:  params.DeviceType,
			Status:      models.HostStatusActive,
			Tags:        params.Tags,
			Notes:       params.Notes,
			CreatedBy:   params.Actor,
			UpdatedBy:   params.Actor,
		}
		claim := models.Claim{
			OwnerUserID: ownerUserId,
			XOctet:      region.XOctet,
			YOctet:      region.YOctet,
			ZOctet:      z,
			Kind:        models.ClaimKindHost,
			ResourceID:  host.ID,
		}
		if err := a.claimCoordinate(txn, &claim); err != nil {
			return err
		}
		if err := a.reserveQuota(txn, ownerUserId, models.ResourceTypeHost); err != nil {
			return err
		}
		if err := models.HostCreateTxn(txn, &host); err != nil {
			return err
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(HostAllocateEventType),
				ResourceType: string(models.ResourceTypeHost),
				ResourceID:   host.ID,
				After:        mustJson(host),
				Actor:        params.Actor,
			},
		)
		if err != nil {
			return err
		}
		ret = host
		txn.OnCommit(func() {
			a.metrics.claims.
				WithLabelValues(string(models.ResourceTypeHost)).Inc()
			a.publishResourceEvent(
				HostAllocateEventType,
				ownerUserId,
				models.ResourceTypeHost,
				host.ID,
				auditId,
				fmt.Sprintf("10.%d.%d.%d", host.XOctet, host.YOctet, host.ZOctet),
			)
		})
		return nil
	})
	if err != nil {
		return models.Host{}, err
	}
	return ret, nil
}

// claimCoordinate atomically inserts a claim, taking over an expired
// reservation claim when present. Returns models.ErrClaimTaken when the
// coordinate is held by a live claim
func (a *Allocator) claimCoordinate(
	txn *database.Txn,
	claim *models.Claim,
) error {
	err := models.ClaimCreateTxn(txn, claim)
	if errors.Is(err, models.ErrClaimTaken) {
		return models.ClaimTakeoverTxn(txn, claim)
	}
	return err
}

// reserveQuota ensures the user's quota row exists and bumps the count for
// the resource type within the claim transaction, so the count and the
// resource insert commit together or not at all
func (a *Allocator) reserveQuota(
	txn *database.Txn,
	ownerUserId string,
	resourceType models.ResourceType,
) error {
	err := models.QuotaEnsureTxn(
		txn,
		ownerUserId,
		a.config.defaultRegionQuota,
		a.config.defaultHostQuota,
	)
	if err != nil {
		return err
	}
	ok, err := models.QuotaIncrementTxn(txn, ownerUserId, resourceType)
	if err != nil {
		return err
	}
	if !ok {
		a.metrics.quotaRejections.WithLabelValues(string(resourceType)).Inc()
		return ErrQuotaExceeded
	}
	return nil
}

// appendAudit adds a record to the user's audit chain within the claim
// transaction. A claim that cannot be audited is not committed
func (a *Allocator) appendAudit(
	txn *database.Txn,
	record ledger.Record,
) (string, error) {
	if err := a.auditLedger.AppendTxn(txn, &record); err != nil {
		return "", fmt.Errorf("audit append failed: %w", err)
	}
	return record.AuditID, nil
}

// claimWithRetry runs the claim function, retrying with bounded exponential
// backoff when it loses a coordinate race to a concurrent writer. All other
// errors propagate unchanged
func (a *Allocator) claimWithRetry(
	ownerUserId string,
	fn func(*database.Txn) error,
) error {
	backoff := claimBackoffBase
	for attempt := 0; attempt < claimRetryLimit; attempt++ {
		err := a.userTxn(ownerUserId, fn)
		if err == nil {
			return nil
		}
		if !claimRetryable(err) {
			return err
		}
		a.metrics.claimConflicts.Inc()
		a.config.logger.Debug(
			fmt.Sprintf(
				"claim conflict, retrying (attempt %d/%d)",
				attempt+1,
				claimRetryLimit,
			),
			"component", "allocator",
			"user", ownerUserId,
		)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > claimBackoffMax {
			backoff = claimBackoffMax
		}
	}
	a.metrics.claimContention.Inc()
	return ErrAllocationContention
}

// claimRetryable determines whether a claim failure is a transient
// coordinate race worth retrying. sqlite write contention from concurrent
// processes sharing the store also lands here
func claimRetryable(err error) bool {
	if errors.Is(err, models.ErrClaimTaken) {
		return true
	}
	errText := err.Error()
	return strings.Contains(errText, "database is locked") ||
		strings.Contains(errText, "SQLITE_BUSY")
}

func (a *Allocator) publishResourceEvent(
	eventType event.EventType,
	ownerUserId string,
	resourceType models.ResourceType,
	resourceId string,
	auditId string,
	address string,
) {
	a.eventBus.Publish(
		eventType,
		event.NewEvent(
			eventType,
			ResourceEvent{
				OwnerUserID:  ownerUserId,
				ResourceType: resourceType,
				ResourceID:   resourceId,
				AuditID:      auditId,
				Address:      address,
			},
		),
	)
}

// mustJson serializes a value for an audit record's before/after snapshot
func mustJson(v any) json.RawMessage {
	tmpJson, err := json.Marshal(v)
	if err != nil {
		// Model types are all marshalable
		panic(err)
	}
	return tmpJson
}
