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

	"github.com/blinklabs-io/addrspace/models"
	"gorm.io/gorm"
)

// GetRegion returns a region owned by the user
func (a *Allocator) GetRegion(
	ownerUserId string,
	regionId string,
) (models.Region, error) {
	region, err := models.RegionById(a.db, regionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Region{}, ErrNotFound
		}
		return models.Region{}, err
	}
	if region.OwnerUserID != ownerUserId {
		return models.Region{}, ErrNotFound
	}
	return region, nil
}

// GetHost returns a host owned by the user
func (a *Allocator) GetHost(
	ownerUserId string,
	hostId string,
) (models.Host, error) {
	host, err := models.HostById(a.db, hostId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Host{}, ErrNotFound
		}
		return models.Host{}, err
	}
	if host.OwnerUserID != ownerUserId {
		return models.Host{}, ErrNotFound
	}
	return host, nil
}

// ListRegions returns the user's regions in address order
func (a *Allocator) ListRegions(ownerUserId string) ([]models.Region, error) {
	return models.RegionsByOwner(a.db, ownerUserId)
}

// ListHosts returns the hosts within a region in address order
func (a *Allocator) ListHosts(
	ownerUserId string,
	regionId string,
) ([]models.Host, error) {
	if _, err := a.GetRegion(ownerUserId, regionId); err != nil {
		return nil, err
	}
	return models.HostsByRegion(a.db, regionId)
}

// ListReservations returns the user's reservations, including expired,
// converted, and cancelled ones, in creation order
func (a *Allocator) ListReservations(
	ownerUserId string,
) ([]models.Reservation, error) {
	return models.ReservationsByOwner(a.db, ownerUserId)
}

// ListRegionComments returns a region's comments in the order they were added
func (a *Allocator) ListRegionComments(
	ownerUserId string,
	regionId string,
) ([]models.RegionComment, error) {
	if _, err := a.GetRegion(ownerUserId, regionId); err != nil {
		return nil, err
	}
	return models.RegionCommentsByRegion(a.db, regionId)
}
