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
	"errors"
	"fmt"

	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/ledger"
	"github.com/blinklabs-io/addrspace/models"
	"gorm.io/gorm"
)

// ReleaseResult confirms a completed release
type ReleaseResult struct {
	ResourceID      string
	ResourceType    models.ResourceType
	AuditID         string
	ReleasedHosts   int
	AlreadyReleased bool
}

// Release hard-deletes a region or host, immediately freeing its coordinate
// for reuse by the same user. Releasing a region with cascade releases all
// its hosts first, each with its own audit record; without cascade a
// non-empty region fails with ErrNotEmpty. Releasing an already-released
// resource is a no-op so retried external calls stay safe
func (a *Allocator) Release(
	ownerUserId string,
	resourceId string,
	cascade bool,
	reason string,
	actor string,
) (ReleaseResult, error) {
	var ret ReleaseResult
	err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
		region, err := models.RegionByIdTxn(txn, resourceId)
		if err == nil {
			if region.OwnerUserID != ownerUserId {
				return ErrNotFound
			}
			return a.releaseRegionTxn(txn, region, cascade, reason, actor, &ret)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		host, err := models.HostByIdTxn(txn, resourceId)
		if err == nil {
			if host.OwnerUserID != ownerUserId {
				return ErrNotFound
			}
			return a.releaseHostTxn(txn, host, reason, actor, &ret)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return ErrNotFound
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The row is gone, but the audit ledger tells us whether it was
			// released earlier, which makes retried release calls a no-op
			released, err2 := a.resourceReleased(ownerUserId, resourceId)
			if err2 != nil {
				return ret, err2
			}
			if released {
				return ReleaseResult{
					ResourceID:      resourceId,
					AlreadyReleased: true,
				}, nil
			}
		}
		return ret, err
	}
	return ret, nil
}

func (a *Allocator) releaseRegionTxn(
	txn *database.Txn,
	region models.Region,
	cascade bool,
	reason string,
	actor string,
	ret *ReleaseResult,
) error {
	hosts, err := models.HostsByRegionTxn(txn, region.ID)
	if err != nil {
		return err
	}
	if len(hosts) > 0 && !cascade {
		return ErrNotEmpty
	}
	// Release hosts in address order, each with its own audit record
	for _, host := range hosts {
		var hostResult ReleaseResult
		if err := a.releaseHostTxn(txn, host, reason, actor, &hostResult); err != nil {
			return err
		}
		ret.ReleasedHosts++
	}
	claim, err := models.ClaimByResourceTxn(txn, region.ID)
	if err != nil {
		return fmt.Errorf("failed to load region claim: %w", err)
	}
	if err := models.ClaimDeleteTxn(txn, claim); err != nil {
		return err
	}
	if err := models.RegionCommentsDeleteTxn(txn, region.ID); err != nil {
		return err
	}
	if err := models.RegionDeleteTxn(txn, region); err != nil {
		return err
	}
	if err := models.QuotaDecrementTxn(txn, region.OwnerUserID, models.ResourceTypeRegion); err != nil {
		return err
	}
	auditId, err := a.appendAudit(
		txn,
		ledger.Record{
			OwnerUserID:  region.OwnerUserID,
			EventType:    string(RegionReleaseEventType),
			ResourceType: string(models.ResourceTypeRegion),
			ResourceID:   region.ID,
			Before:       mustJson(region),
			Actor:        actor,
			Reason:       reason,
		},
	)
	if err != nil {
		return err
	}
	ret.ResourceID = region.ID
	ret.ResourceType = models.ResourceTypeRegion
	ret.AuditID = auditId
	txn.OnCommit(func() {
		a.metrics.releases.
			WithLabelValues(string(models.ResourceTypeRegion)).Inc()
		a.publishResourceEvent(
			RegionReleaseEventType,
			region.OwnerUserID,
			models.ResourceTypeRegion,
			region.ID,
			auditId,
			fmt.Sprintf("10.%d.%d.0/24", region.XOctet, region.YOctet),
		)
	})
	return nil
}

func (a *Allocator) releaseHostTxn(
	txn *database.Txn,
	host models.Host,
	reason string,
	actor string,
	ret *ReleaseResult,
) error {
	claim, err := models.ClaimByResourceTxn(txn, host.ID)
	if err != nil {
		return fmt.Errorf("failed to load host claim: %w", err)
	}
	if err := models.ClaimDeleteTxn(txn, claim); err != nil {
		return err
	}
	if err := models.HostDeleteTxn(txn, host); err != nil {
		return err
	}
	if err := models.QuotaDecrementTxn(txn, host.OwnerUserID, models.ResourceTypeHost); err != nil {
		return err
	}
	auditId, err := a.appendAudit(
		txn,
		ledger.Record{
			OwnerUserID:  host.OwnerUserID,
			EventType:    string(HostReleaseEventType),
			ResourceType: string(models.ResourceTypeHost),
			ResourceID:   host.ID,
			Before:       mustJson(host),
			Actor:        actor,
			Reason:       reason,
		},
	)
	if err != nil {
		return err
	}
	ret.ResourceID = host.ID
	ret.ResourceType = models.ResourceTypeHost
	ret.AuditID = auditId
	txn.OnCommit(func() {
		a.metrics.releases.
			WithLabelValues(string(models.ResourceTypeHost)).Inc()
		a.publishResourceEvent(
			HostReleaseEventType,
			host.OwnerUserID,
			models.ResourceTypeHost,
			host.ID,
			auditId,
			fmt.Sprintf("10.%d.%d.%d", host.XOctet, host.YOctet, host.ZOctet),
		)
	})
	return nil
}

// resourceReleased reports whether the audit ledger contains a release record
// for the given resource
func (a *Allocator) resourceReleased(
	ownerUserId string,
	resourceId string,
) (bool, error) {
	records, err := a.auditLedger.Query(
		ownerUserId,
		ledger.Filter{
			EventTypes: []string{
				string(RegionReleaseEventType),
				string(HostReleaseEventType),
			},
			ResourceID: resourceId,
		},
	)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}
