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

package models

import (
	"time"

	"github.com/blinklabs-io/addrspace/database"
)

// HostStatus is the lifecycle state of a host
type HostStatus string

const (
	HostStatusActive   HostStatus = "Active"
	HostStatusReserved HostStatus = "Reserved"
	HostStatusReleased HostStatus = "Released"
)

// Host is a single address within a region. XOctet and YOctet are inherited
// from the owning region and denormalized here for address interpretation
type Host struct {
	ID          string `gorm:"primarykey"`
	OwnerUserID string `gorm:"index"`
	RegionID    string `gorm:"index;uniqueIndex:idx_host_coord"`
	XOctet      uint8
	YOctet      uint8
	ZOctet      uint8 `gorm:"uniqueIndex:idx_host_coord"`
	Hostname    string
	DeviceType  string
	Status      HostStatus
	Tags        database.TagMap
	Notes       string
	CreatedAt   time.Time
	CreatedBy   string
	UpdatedAt   time.Time
	UpdatedBy   string
}

func HostCreateTxn(txn *database.Txn, host *Host) error {
	if result := txn.Metadata().Create(host); result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrClaimTaken
		}
		return result.Error
	}
	return nil
}

func HostById(db database.Database, hostId string) (Host, error) {
	var tmpHost Host
	result := db.Metadata().First(&tmpHost, "id = ?", hostId)
	return tmpHost, result.Error
}

func HostByIdTxn(txn *database.Txn, hostId string) (Host, error) {
	var tmpHost Host
	result := txn.Metadata().First(&tmpHost, "id = ?", hostId)
	return tmpHost, result.Error
}

func HostByCoord(
	db database.Database,
	ownerUserId string,
	x, y, z uint8,
) (Host, error) {
	var tmpHost Host
	result := db.Metadata().First(
		&tmpHost,
		"owner_user_id = ? AND x_octet = ? AND y_octet = ? AND z_octet = ?",
		ownerUserId,
		x,
		y,
		z,
	)
	return tmpHost, result.Error
}

func HostsByRegion(
	db database.Database,
	regionId string,
) ([]Host, error) {
	var ret []Host
	result := db.Metadata().
		Where("region_id = ?", regionId).
		Order("z_octet").
		Find(&ret)
	return ret, result.Error
}

func HostsByRegionTxn(
	txn *database.Txn,
	regionId string,
) ([]Host, error) {
	var ret []Host
	result := txn.Metadata().
		Where("region_id = ?", regionId).
		Order("z_octet").
		Find(&ret)
	return ret, result.Error
}

func HostCountByRegionTxn(
	txn *database.Txn,
	regionId string,
) (int64, error) {
	var ret int64
	result := txn.Metadata().Model(&Host{}).
		Where("region_id = ?", regionId).
		Count(&ret)
	return ret, result.Error
}

func HostDeleteTxn(txn *database.Txn, host Host) error {
	result := txn.Metadata().Delete(&host)
	return result.Error
}

func HostUpdateTxn(txn *database.Txn, host *Host) error {
	result := txn.Metadata().Save(host)
	return result.Error
}
