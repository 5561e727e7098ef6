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
	"fmt"
	"time"

	"github.com/blinklabs-io/addrspace/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Quota tracks a user's resource ceilings and derived counts. Counts are
// maintained inside the same transaction as the resource insert/delete so a
// serialized quota check can never be overshot by concurrent claims
type Quota struct {
	OwnerUserID string `gorm:"primarykey"`
	RegionQuota uint
	RegionCount uint
	HostQuota   uint
	HostCount   uint
	UpdatedAt   time.Time
}

func QuotaByOwner(
	db database.Database,
	ownerUserId string,
) (Quota, error) {
	var tmpQuota Quota
	result := db.Metadata().First(&tmpQuota, "owner_user_id = ?", ownerUserId)
	return tmpQuota, result.Error
}

func QuotaByOwnerTxn(
	txn *database.Txn,
	ownerUserId string,
) (Quota, error) {
	var tmpQuota Quota
	result := txn.Metadata().First(&tmpQuota, "owner_user_id = ?", ownerUserId)
	return tmpQuota, result.Error
}

// QuotaEnsureTxn creates the quota row for a user with the given defaults if
// it doesn't exist yet
func QuotaEnsureTxn(
	txn *database.Txn,
	ownerUserId string,
	defaultRegionQuota uint,
	defaultHostQuota uint,
) error {
	tmpQuota := Quota{
		OwnerUserID: ownerUserId,
		RegionQuota: defaultRegionQuota,
		HostQuota:   defaultHostQuota,
	}
	result := txn.Metadata().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_user_id"}},
		DoNothing: true,
	}).Create(&tmpQuota)
	return result.Error
}

// QuotaIncrementTxn bumps the count for the given resource type, guarded by
// the configured ceiling. Returns false without modifying anything when the
// user is at quota
func QuotaIncrementTxn(
	txn *database.Txn,
	ownerUserId string,
	resourceType ResourceType,
) (bool, error) {
	var result *gorm.DB
	switch resourceType {
	case ResourceTypeRegion:
		result = txn.Metadata().Model(&Quota{}).
			Where("owner_user_id = ? AND region_count < region_quota", ownerUserId).
			UpdateColumn("region_count", gorm.Expr("region_count + 1"))
	case ResourceTypeHost:
		result = txn.Metadata().Model(&Quota{}).
			Where("owner_user_id = ? AND host_count < host_quota", ownerUserId).
			UpdateColumn("host_count", gorm.Expr("host_count + 1"))
	default:
		return false, fmt.Errorf("unknown resource type: %s", resourceType)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// QuotaDecrementTxn lowers the count for the given resource type, flooring at
// zero
func QuotaDecrementTxn(
	txn *database.Txn,
	ownerUserId string,
	resourceType ResourceType,
) error {
	var result *gorm.DB
	switch resourceType {
	case ResourceTypeRegion:
		result = txn.Metadata().Model(&Quota{}).
			Where("owner_user_id = ? AND region_count > 0", ownerUserId).
			UpdateColumn("region_count", gorm.Expr("region_count - 1"))
	case ResourceTypeHost:
		result = txn.Metadata().Model(&Quota{}).
			Where("owner_user_id = ? AND host_count > 0", ownerUserId).
			UpdateColumn("host_count", gorm.Expr("host_count - 1"))
	default:
		return fmt.Errorf("unknown resource type: %s", resourceType)
	}
	return result.Error
}

// QuotaSetLimitsTxn updates a user's ceilings. Changes take effect for
// subsequent claims immediately
func QuotaSetLimitsTxn(
	txn *database.Txn,
	ownerUserId string,
	regionQuota uint,
	hostQuota uint,
) error {
	result := txn.Metadata().Model(&Quota{}).
		Where("owner_user_id = ?", ownerUserId).
		Updates(map[string]any{
			"region_quota": regionQuota,
			"host_quota":   hostQuota,
		})
	return result.Error
}
