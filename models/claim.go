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
	"errors"
	"time"

	"github.com/blinklabs-io/addrspace/database"
	"gorm.io/gorm"
)

// ClaimKind identifies what holds a claimed coordinate
type ClaimKind string

const (
	ClaimKindRegion      ClaimKind = "region"
	ClaimKindHost        ClaimKind = "host"
	ClaimKindReservation ClaimKind = "reservation"
)

// Claim is the uniqueness authority for the per-user coordinate space. Every
// Region, Host, and active Reservation owns exactly one claim row. ZOctet 0
// denotes a region-level claim; host claims use ZOctet 1-254.
//
// The unique index makes insert-if-absent atomic, which is what turns a
// capacity-index candidate into a collision-free allocation
type Claim struct {
	ID          uint   `gorm:"primarykey"`
	OwnerUserID string `gorm:"uniqueIndex:idx_claim_coord"`
	XOctet      uint8  `gorm:"uniqueIndex:idx_claim_coord"`
	YOctet      uint8  `gorm:"uniqueIndex:idx_claim_coord"`
	ZOctet      uint8  `gorm:"uniqueIndex:idx_claim_coord"`
	Kind        ClaimKind
	ResourceID  string `gorm:"index"`
	// ExpiresAt is only set for reservation claims. An expired claim is
	// treated as free by the capacity index and taken over on insert conflict
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// ClaimCreateTxn atomically inserts a claim row. Returns ErrClaimTaken if the
// coordinate is already claimed
func ClaimCreateTxn(txn *database.Txn, claim *Claim) error {
	if result := txn.Metadata().Create(claim); result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrClaimTaken
		}
		return result.Error
	}
	return nil
}

// ClaimByCoordTxn returns the claim holding the given coordinate, if any
func ClaimByCoordTxn(
	txn *database.Txn,
	ownerUserId string,
	x, y, z uint8,
) (Claim, error) {
	var tmpClaim Claim
	result := txn.Metadata().First(
		&tmpClaim,
		"owner_user_id = ? AND x_octet = ? AND y_octet = ? AND z_octet = ?",
		ownerUserId,
		x,
		y,
		z,
	)
	return tmpClaim, result.Error
}

// ClaimByResourceTxn returns the claim owned by the given resource
func ClaimByResourceTxn(
	txn *database.Txn,
	resourceId string,
) (Claim, error) {
	var tmpClaim Claim
	result := txn.Metadata().First(
		&tmpClaim,
		"resource_id = ?",
		resourceId,
	)
	return tmpClaim, result.Error
}

// ClaimUpdateTxn saves changes to an existing claim row
func ClaimUpdateTxn(txn *database.Txn, claim *Claim) error {
	result := txn.Metadata().Save(claim)
	return result.Error
}

// ClaimDeleteTxn removes a claim row, freeing its coordinate for reuse
func ClaimDeleteTxn(txn *database.Txn, claim Claim) error {
	result := txn.Metadata().Delete(&claim)
	return result.Error
}

// ClaimExpired returns whether the claim belongs to a reservation whose TTL
// has passed
func (c Claim) ClaimExpired(now time.Time) bool {
	return c.Kind == ClaimKindReservation &&
		c.ExpiresAt != nil &&
		c.ExpiresAt.Before(now)
}

// ClaimTakeoverTxn replaces an expired reservation claim with a new claim for
// the same coordinate. The stale reservation row is marked expired. Returns
// ErrClaimTaken if the existing claim is still live
func ClaimTakeoverTxn(txn *database.Txn, claim *Claim) error {
	existing, err := ClaimByCoordTxn(
		txn,
		claim.OwnerUserID,
		claim.XOctet,
		claim.YOctet,
		claim.ZOctet,
	)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Holder disappeared between our insert attempt and now, so the
			// plain insert path can be retried
			return ErrClaimTaken
		}
		return err
	}
	if !existing.ClaimExpired(time.Now()) {
		return ErrClaimTaken
	}
	if err := ClaimDeleteTxn(txn, existing); err != nil {
		return err
	}
	// Mark the stale reservation row expired
	result := txn.Metadata().Model(&Reservation{}).
		Where("id = ? AND status = ?", existing.ResourceID, ReservationStatusActive).
		UpdateColumn("status", ReservationStatusExpired)
	if result.Error != nil {
		return result.Error
	}
	return ClaimCreateTxn(txn, claim)
}
