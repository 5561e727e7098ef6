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

// RegionStatus is the lifecycle state of a region
type RegionStatus string

const (
	RegionStatusActive   RegionStatus = "Active"
	RegionStatusReserved RegionStatus = "Reserved"
	RegionStatusRetired  RegionStatus = "Retired"
)

// Region is a /24 network block within a country's octet range, owned by a
// single user. Its coordinate is (XOctet, YOctet); hosts within the region
// inherit both
type Region struct {
	ID          string `gorm:"primarykey"`
	OwnerUserID string `gorm:"index;uniqueIndex:idx_region_coord"`
	Country     string
	XOctet      uint8 `gorm:"uniqueIndex:idx_region_coord"`
	YOctet      uint8 `gorm:"uniqueIndex:idx_region_coord"`
	Name        string
	Status      RegionStatus
	OwnerLabel  string
	Tags        database.TagMap
	CreatedAt   time.Time
	CreatedBy   string
	UpdatedAt   time.Time
	UpdatedBy   string
}

// RegionComment is a single entry in a region's ordered comment list. The
// autoincrement ID provides the ordering
type RegionComment struct {
	ID        uint   `gorm:"primarykey"`
	RegionID  string `gorm:"index"`
	Author    string
	Body      string
	CreatedAt time.Time
}

func RegionCreateTxn(txn *database.Txn, region *Region) error {
	if result := txn.Metadata().Create(region); result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrClaimTaken
		}
		return result.Error
	}
	return nil
}

func RegionById(db database.Database, regionId string) (Region, error) {
	var tmpRegion Region
	result := db.Metadata().First(&tmpRegion, "id = ?", regionId)
	return tmpRegion, result.Error
}

func RegionByIdTxn(txn *database.Txn, regionId string) (Region, error) {
	var tmpRegion Region
	result := txn.Metadata().First(&tmpRegion, "id = ?", regionId)
	return tmpRegion, result.Error
}

func RegionByCoord(
	db database.Database,
	ownerUserId string,
	x, y uint8,
) (Region, error) {
	var tmpRegion Region
	result := db.Metadata().First(
		&tmpRegion,
		"owner_user_id = ? AND x_octet = ? AND y_octet = ?",
		ownerUserId,
		x,
		y,
	)
	return tmpRegion, result.Error
}

func RegionByCoordTxn(
	txn *database.Txn,
	ownerUserId string,
	x, y uint8,
) (Region, error) {
	var tmpRegion Region
	result := txn.Metadata().First(
		&tmpRegion,
		"owner_user_id = ? AND x_octet = ? AND y_octet = ?",
		ownerUserId,
		x,
		y,
	)
	return tmpRegion, result.Error
}

func RegionsByOwner(
	db database.Database,
	ownerUserId string,
) ([]Region, error) {
	var ret []Region
	result := db.Metadata().
		Where("owner_user_id = ?", ownerUserId).
		Order("x_octet, y_octet").
		Find(&ret)
	return ret, result.Error
}

// RegionDeleteTxn hard-deletes a region row. The coordinate is freed by
// deleting the corresponding claim, which callers must do in the same
// transaction
func RegionDeleteTxn(txn *database.Txn, region Region) error {
	result := txn.Metadata().Delete(&region)
	return result.Error
}

func RegionUpdateTxn(txn *database.Txn, region *Region) error {
	result := txn.Metadata().Save(region)
	return result.Error
}

func RegionCommentCreateTxn(
	txn *database.Txn,
	comment *RegionComment,
) error {
	result := txn.Metadata().Create(comment)
	return result.Error
}

func RegionCommentsByRegion(
	db database.Database,
	regionId string,
) ([]RegionComment, error) {
	var ret []RegionComment
	result := db.Metadata().
		Where("region_id = ?", regionId).
		Order("id").
		Find(&ret)
	return ret, result.Error
}

func RegionCommentsDeleteTxn(txn *database.Txn, regionId string) error {
	result := txn.Metadata().
		Where("region_id = ?", regionId).
		Delete(&RegionComment{})
	return result.Error
}
