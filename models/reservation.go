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

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusConverted ReservationStatus = "converted"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a time-bounded hold on a coordinate. While active it
// occupies the coordinate exactly like a real allocation; past ExpiresAt the
// coordinate is claimable again even before the sweep runs
type Reservation struct {
	ID           string `gorm:"primarykey"`
	OwnerUserID  string `gorm:"index"`
	ResourceType ResourceType
	XOctet       uint8
	YOctet       uint8
	// ZOctet is nil for region reservations
	ZOctet    *uint8
	Reason    string
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active returns whether the reservation currently holds its coordinate
func (r Reservation) Active(now time.Time) bool {
	return r.Status == ReservationStatusActive && r.ExpiresAt.After(now)
}

func ReservationCreateTxn(
	txn *database.Txn,
	reservation *Reservation,
) error {
	result := txn.Metadata().Create(reservation)
	return result.Error
}

func ReservationById(
	db database.Database,
	reservationId string,
) (Reservation, error) {
	var tmpReservation Reservation
	result := db.Metadata().First(&tmpReservation, "id = ?", reservationId)
	return tmpReservation, result.Error
}

func ReservationByIdTxn(
	txn *database.Txn,
	reservationId string,
) (Reservation, error) {
	var tmpReservation Reservation
	result := txn.Metadata().First(&tmpReservation, "id = ?", reservationId)
	return tmpReservation, result.Error
}

func ReservationsByOwner(
	db database.Database,
	ownerUserId string,
) ([]Reservation, error) {
	var ret []Reservation
	result := db.Metadata().
		Where("owner_user_id = ?", ownerUserId).
		Order("created_at").
		Find(&ret)
	return ret, result.Error
}

// ReservationsExpiredTxn returns active reservations whose TTL passed before
// the given cutoff, for the background sweep
func ReservationsExpiredTxn(
	txn *database.Txn,
	cutoff time.Time,
	limit int,
) ([]Reservation, error) {
	var ret []Reservation
	result := txn.Metadata().
		Where("status = ? AND expires_at <= ?", ReservationStatusActive, cutoff).
		Order("expires_at").
		Limit(limit).
		Find(&ret)
	return ret, result.Error
}

func ReservationUpdateTxn(
	txn *database.Txn,
	reservation *Reservation,
) error {
	result := txn.Metadata().Save(reservation)
	return result.Error
}
