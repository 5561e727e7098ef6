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

// Package capacity answers next-free coordinate queries for (user, country)
// and (user, region) scopes against the claims table. Candidates are always
// the lowest available value, which makes sequential allocation order
// deterministic. Expired reservation claims are treated as free
package capacity

import (
	"errors"
	"time"

	"github.com/blinklabs-io/addrspace/countries"
	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/models"
)

const (
	// HostZMin and HostZMax bound the allocatable host octet. 0 and 255 are
	// never allocated (network/broadcast reservation)
	HostZMin = 1
	HostZMax = 254

	// RegionCapacityPerX is the number of region slots per first octet value
	RegionCapacityPerX = 256

	// RegionHostCapacity is the number of host slots per region
	RegionHostCapacity = HostZMax - HostZMin + 1
)

// ErrExhausted is returned when every coordinate in the scope is in use
var ErrExhausted = errors.New("scope capacity exhausted")

// NextFreeRegion returns the lowest free (x, y) coordinate for the given user
// within the country's octet range, or ErrExhausted when every slot is used
func NextFreeRegion(
	txn *database.Txn,
	ownerUserId string,
	country countries.CountryBlock,
) (uint8, uint8, error) {
	now := time.Now()
	// Fetch per-x used counts in one query so we can skip full octets without
	// reading their y values
	var tmpCounts []struct {
		XOctet uint8
		Used   int
	}
	result := txn.Metadata().Model(&models.Claim{}).
		Select("x_octet, count(*) as used").
		Where(
			"owner_user_id = ? AND x_octet BETWEEN ? AND ? AND z_octet = 0",
			ownerUserId,
			country.XStart,
			country.XEnd,
		).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Group("x_octet").
		Scan(&tmpCounts)
	if result.Error != nil {
		return 0, 0, result.Error
	}
	usedByX := make(map[uint8]int)
	for _, tmpCount := range tmpCounts {
		usedByX[tmpCount.XOctet] = tmpCount.Used
	}
	for x := int(country.XStart); x <= int(country.XEnd); x++ {
		if usedByX[uint8(x)] >= RegionCapacityPerX {
			continue
		}
		var usedY []uint8
		result := txn.Metadata().Model(&models.Claim{}).
			Where(
				"owner_user_id = ? AND x_octet = ? AND z_octet = 0",
				ownerUserId,
				x,
			).
			Where("expires_at IS NULL OR expires_at > ?", now).
			Order("y_octet").
			Pluck("y_octet", &usedY)
		if result.Error != nil {
			return 0, 0, result.Error
		}
		if y, ok := lowestFree(usedY, 0, 255); ok {
			return uint8(x), y, nil
		}
	}
	return 0, 0, ErrExhausted
}

// NextFreeHost returns the lowest free z octet for the given user and region
// coordinate, or ErrExhausted when all 254 slots are used
func NextFreeHost(
	txn *database.Txn,
	ownerUserId string,
	x, y uint8,
) (uint8, error) {
	now := time.Now()
	var usedZ []uint8
	result := txn.Metadata().Model(&models.Claim{}).
		Where(
			"owner_user_id = ? AND x_octet = ? AND y_octet = ? AND z_octet > 0",
			ownerUserId,
			x,
			y,
		).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("z_octet").
		Pluck("z_octet", &usedZ)
	if result.Error != nil {
		return 0, result.Error
	}
	if z, ok := lowestFree(usedZ, HostZMin, HostZMax); ok {
		return z, nil
	}
	return 0, ErrExhausted
}

// lowestFree returns the lowest value in [min, max] not present in the sorted
// used list
func lowestFree(used []uint8, min, max uint8) (uint8, bool) {
	candidate := int(min)
	for _, v := range used {
		if int(v) < candidate {
			continue
		}
		if int(v) == candidate {
			candidate++
			continue
		}
		break
	}
	if candidate > int(max) {
		return 0, false
	}
	return uint8(candidate), true
}
