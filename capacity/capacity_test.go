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

package capacity_test

import (
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/addrspace/capacity"
	"github.com/blinklabs-io/addrspace/countries"
	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/models"
)

const testUser = "user-1"

func newTestDb(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewInMemory(nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	for _, model := range models.MigrateModels {
		if err := db.Metadata().AutoMigrate(model); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	return db
}

func insertClaims(t *testing.T, db database.Database, claims []models.Claim) {
	t.Helper()
	txn := db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		for i := range claims {
			if err := models.ClaimCreateTxn(txn, &claims[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func regionClaim(x, y uint8) models.Claim {
	return models.Claim{
		OwnerUserID: testUser,
		XOctet:      x,
		YOctet:      y,
		ZOctet:      0,
		Kind:        models.ClaimKindRegion,
		ResourceID:  "test-region",
	}
}

func hostClaim(x, y, z uint8) models.Claim {
	return models.Claim{
		OwnerUserID: testUser,
		XOctet:      x,
		YOctet:      y,
		ZOctet:      z,
		Kind:        models.ClaimKindHost,
		ResourceID:  "test-host",
	}
}

func nextFreeRegion(
	t *testing.T,
	db database.Database,
	country countries.CountryBlock,
) (uint8, uint8, error) {
	t.Helper()
	var x, y uint8
	txn := db.Transaction(false)
	err := txn.Do(func(txn *database.Txn) error {
		var err error
		x, y, err = capacity.NextFreeRegion(txn, testUser, country)
		return err
	})
	return x, y, err
}

func nextFreeHost(
	t *testing.T,
	db database.Database,
	x, y uint8,
) (uint8, error) {
	t.Helper()
	var z uint8
	txn := db.Transaction(false)
	err := txn.Do(func(txn *database.Txn) error {
		var err error
		z, err = capacity.NextFreeHost(txn, testUser, x, y)
		return err
	})
	return z, err
}

func TestNextFreeRegionEmpty(t *testing.T) {
	db := newTestDb(t)
	country := countries.CountryBlock{Name: "Testland", XStart: 4, XEnd: 7}
	x, y, err := nextFreeRegion(t, db, country)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if x != 4 || y != 0 {
		t.Fatalf("did not get expected coordinate, got (%d, %d), wanted (4, 0)", x, y)
	}
}

func TestNextFreeRegionFillsGaps(t *testing.T) {
	db := newTestDb(t)
	country := countries.CountryBlock{Name: "Testland", XStart: 0, XEnd: 3}
	insertClaims(t, db, []models.Claim{
		regionClaim(0, 0),
		regionClaim(0, 1),
		regionClaim(0, 3),
	})
	x, y, err := nextFreeRegion(t, db, country)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if x != 0 || y != 2 {
		t.Fatalf("did not get expected coordinate, got (%d, %d), wanted (0, 2)", x, y)
	}
}

func TestNextFreeRegionSkipsFullOctet(t *testing.T) {
	db := newTestDb(t)
	country := countries.CountryBlock{Name: "Testland", XStart: 0, XEnd: 1}
	var claims []models.Claim
	for y := 0; y <= 255; y++ {
		claims = append(claims, regionClaim(0, uint8(y)))
	}
	insertClaims(t, db, claims)
	x, y, err := nextFreeRegion(t, db, country)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if x != 1 || y != 0 {
		t.Fatalf("did not get expected coordinate, got (%d, %d), wanted (1, 0)", x, y)
	}
}

func TestNextFreeRegionExhausted(t *testing.T) {
	db := newTestDb(t)
	country := countries.CountryBlock{Name: "Testland", XStart: 9, XEnd: 9}
	var claims []models.Claim
	for y := 0; y <= 255; y++ {
		claims = append(claims, regionClaim(9, uint8(y)))
	}
	insertClaims(t, db, claims)
	_, _, err := nextFreeRegion(t, db, country)
	if !errors.Is(err, capacity.ErrExhausted) {
		t.Fatalf("did not get expected error, got %v, wanted %v", err, capacity.ErrExhausted)
	}
}

func TestNextFreeRegionExpiredReservation(t *testing.T) {
	db := newTestDb(t)
	country := countries.CountryBlock{Name: "Testland", XStart: 0, XEnd: 0}
	expired := time.Now().Add(-1 * time.Minute)
	live := time.Now().Add(1 * time.Hour)
	expiredClaim := regionClaim(0, 0)
	expiredClaim.Kind = models.ClaimKindReservation
	expiredClaim.ExpiresAt = &expired
	liveClaim := regionClaim(0, 1)
	liveClaim.Kind = models.ClaimKindReservation
	liveClaim.ExpiresAt = &live
	insertClaims(t, db, []models.Claim{expiredClaim, liveClaim})
	x, y, err := nextFreeRegion(t, db, country)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// The expired hold at (0, 0) no longer occupies the coordinate
	if x != 0 || y != 0 {
		t.Fatalf("did not get expected coordinate, got (%d, %d), wanted (0, 0)", x, y)
	}
}

func TestNextFreeHostEmpty(t *testing.T) {
	db := newTestDb(t)
	// The region's own claim at z 0 must not consume a host slot
	insertClaims(t, db, []models.Claim{regionClaim(0, 0)})
	z, err := nextFreeHost(t, db, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if z != capacity.HostZMin {
		t.Fatalf("did not get expected z octet, got %d, wanted %d", z, capacity.HostZMin)
	}
}

func TestNextFreeHostFillsGaps(t *testing.T) {
	db := newTestDb(t)
	insertClaims(t, db, []models.Claim{
		regionClaim(0, 0),
		hostClaim(0, 0, 1),
		hostClaim(0, 0, 2),
		hostClaim(0, 0, 4),
	})
	z, err := nextFreeHost(t, db, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if z != 3 {
		t.Fatalf("did not get expected z octet, got %d, wanted 3", z)
	}
}

func TestNextFreeHostExhausted(t *testing.T) {
	db := newTestDb(t)
	claims := []models.Claim{regionClaim(0, 0)}
	for z := capacity.HostZMin; z <= capacity.HostZMax; z++ {
		claims = append(claims, hostClaim(0, 0, uint8(z)))
	}
	insertClaims(t, db, claims)
	_, err := nextFreeHost(t, db, 0, 0)
	if !errors.Is(err, capacity.ErrExhausted) {
		t.Fatalf("did not get expected error, got %v, wanted %v", err, capacity.ErrExhausted)
	}
}
