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

// RegionUpdate describes a partial update to region metadata. Nil fields are
// left unchanged. Coordinates and ownership are immutable
type RegionUpdate struct {
	Name       *string
	OwnerLabel *string
	Tags       map[string]string
	Status     *models.RegionStatus
}

// HostUpdate describes a partial update to host metadata. Nil fields are left
// unchanged. Coordinates, region, and ownership are immutable
type HostUpdate struct {
	Hostname   *string
	DeviceType *string
	Notes      *string
	Tags       map[string]string
	Status     *models.HostStatus
}

// UpdateRegionMetadata applies a partial metadata update to a region and
// records the change in the audit ledger
func (a *Allocator) UpdateRegionMetadata(
	ownerUserId string,
	regionId string,
	update RegionUpdate,
	actor string,
) (models.Region, error) {
	var ret models.Region
	err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
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
		before := mustJson(region)
		if update.Name != nil {
			region.Name = *update.Name
		}
		if update.OwnerLabel != nil {
			region.OwnerLabel = *update.OwnerLabel
		}
		if update.Tags != nil {
			region.Tags = update.Tags
		}
		if update.Status != nil {
			region.Status = *update.Status
		}
		region.UpdatedBy = actor
		if err := models.RegionUpdateTxn(txn, &region); err != nil {
			return err
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(RegionUpdateEventType),
				ResourceType: string(models.ResourceTypeRegion),
				ResourceID:   region.ID,
				Before:       before,
				After:        mustJson(region),
				Actor:        actor,
			},
		)
		if err != nil {
			return err
		}
		ret = region
		txn.OnCommit(func() {
			a.publishResourceEvent(
				RegionUpdateEventType,
				ownerUserId,
				models.ResourceTypeRegion,
				region.ID,
				auditId,
				fmt.Sprintf("10.%d.%d.0/24", region.XOctet, region.YOctet),
			)
		})
		return nil
	})
	if err != nil {
		return models.Region{}, err
	}
	return ret, nil
}

// UpdateHostMetadata applies a partial metadata update to a host and records
// the change in the audit ledger
func (a *Allocator) UpdateHostMetadata(
	ownerUserId string,
	hostId string,
	update HostUpdate,
	actor string,
) (models.Host, error) {
	var ret models.Host
	err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
		host, err := models.HostByIdTxn(txn, hostId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if host.OwnerUserID != ownerUserId {
			return ErrNotFound
		}
		before := mustJson(host)
		if update.Hostname != nil {
			host.Hostname = *update.Hostname
		}
		if update.DeviceType != nil {
			host.DeviceType = *update.DeviceType
		}
		if update.Notes != nil {
			host.Notes = *update.Notes
		}
		if update.Tags != nil {
			host.Tags = update.Tags
		}
		if update.Status != nil {
			host.Status = *update.Status
		}
		host.UpdatedBy = actor
		if err := models.HostUpdateTxn(txn, &host); err != nil {
			return err
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(HostUpdateEventType),
				ResourceType: string(models.ResourceTypeHost),
				ResourceID:   host.ID,
				Before:       before,
				After:        mustJson(host),
				Actor:        actor,
			},
		)
		if err != nil {
			return err
		}
		ret = host
		txn.OnCommit(func() {
			a.publishResourceEvent(
				HostUpdateEventType,
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

// AddRegionComment appends a comment to a region's ordered comment list
func (a *Allocator) AddRegionComment(
	ownerUserId string,
	regionId string,
	author string,
	body string,
) (models.RegionComment, error) {
	var ret models.RegionComment
	err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
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
		comment := models.RegionComment{
			RegionID: region.ID,
			Author:   author,
			Body:     body,
		}
		if err := models.RegionCommentCreateTxn(txn, &comment); err != nil {
			return err
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(RegionCommentEventType),
				ResourceType: string(models.ResourceTypeRegion),
				ResourceID:   region.ID,
				After:        mustJson(comment),
				Actor:        author,
			},
		)
		if err != nil {
			return err
		}
		ret = comment
		txn.OnCommit(func() {
			a.publishResourceEvent(
				RegionCommentEventType,
				ownerUserId,
				models.ResourceTypeRegion,
				region.ID,
				auditId,
				fmt.Sprintf("10.%d.%d.0/24", region.XOctet, region.YOctet),
			)
		})
		return nil
	})
	if err != nil {
		return models.RegionComment{}, err
	}
	return ret, nil
}
