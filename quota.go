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

	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/ledger"
	"github.com/blinklabs-io/addrspace/models"
	"gorm.io/gorm"
)

// QuotaInfo reports a user's quota ceilings and current usage
type QuotaInfo struct {
	OwnerUserID string
	RegionQuota uint
	RegionCount uint
	HostQuota   uint
	HostCount   uint
}

// GetQuota returns the user's quota ceilings and usage. Users without an
// explicit quota row get the configured defaults with zero usage
func (a *Allocator) GetQuota(ownerUserId string) (QuotaInfo, error) {
	quota, err := models.QuotaByOwner(a.db, ownerUserId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return QuotaInfo{
				OwnerUserID: ownerUserId,
				RegionQuota: a.config.defaultRegionQuota,
				HostQuota:   a.config.defaultHostQuota,
			}, nil
		}
		return QuotaInfo{}, err
	}
	return QuotaInfo{
		OwnerUserID: quota.OwnerUserID,
		RegionQuota: quota.RegionQuota,
		RegionCount: quota.RegionCount,
		HostQuota:   quota.HostQuota,
		HostCount:   quota.HostCount,
	}, nil
}

// SetQuota sets the user's region and host ceilings. Lowering a quota below
// current usage is allowed; existing resources stay but new claims fail until
// usage drops below the new ceiling
func (a *Allocator) SetQuota(
	ownerUserId string,
	regionQuota uint,
	hostQuota uint,
	actor string,
) (QuotaInfo, error) {
	var ret QuotaInfo
	err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
		err := models.QuotaEnsureTxn(
			txn,
			ownerUserId,
			a.config.defaultRegionQuota,
			a.config.defaultHostQuota,
		)
		if err != nil {
			return err
		}
		before, err := models.QuotaByOwnerTxn(txn, ownerUserId)
		if err != nil {
			return err
		}
		err = models.QuotaSetLimitsTxn(txn, ownerUserId, regionQuota, hostQuota)
		if err != nil {
			return err
		}
		after := before
		after.RegionQuota = regionQuota
		after.HostQuota = hostQuota
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(QuotaUpdateEventType),
				ResourceType: "quota",
				ResourceID:   ownerUserId,
				Before:       mustJson(before),
				After:        mustJson(after),
				Actor:        actor,
			},
		)
		if err != nil {
			return err
		}
		ret = QuotaInfo{
			OwnerUserID: ownerUserId,
			RegionQuota: regionQuota,
			RegionCount: after.RegionCount,
			HostQuota:   hostQuota,
			HostCount:   after.HostCount,
		}
		txn.OnCommit(func() {
			a.publishResourceEvent(
				QuotaUpdateEventType,
				ownerUserId,
				"quota",
				ownerUserId,
				auditId,
				"",
			)
		})
		return nil
	})
	if err != nil {
		return QuotaInfo{}, err
	}
	return ret, nil
}
