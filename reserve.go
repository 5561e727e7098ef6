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
	"time"

	"github.com/blinklabs-io/addrspace/capacity"
	"github.com/blinklabs-io/addrspace/database"
	"github.com/blinklabs-io/addrspace/ledger"
	"github.com/blinklabs-io/addrspace/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// reservationSweepBatchLimit bounds how many expired reservations a single
// sweep pass will process
const reservationSweepBatchLimit = 100

// Coordinate names an explicit address within the user's space. Z is nil for
// region-level coordinates
type Coordinate struct {
	X uint8
	Y uint8
	Z *uint8
}

// ReserveRequest describes a reservation to place. Country drives automatic
// region placement; RegionID drives host placement. When Coordinate is set
// the exact address is requested and a conflict fails immediately with
// ErrCoordinateInUse instead of retrying
type ReserveRequest struct {
	ResourceType models.ResourceType
	Country      string
	RegionID     string
	Coordinate   *Coordinate
	Reason       string
	TTL          time.Duration
	Actor        string
}

// Reserve places a time-bounded hold on a coordinate. While active the
// reservation occupies the coordinate exactly like an allocation, but it does
// not consume quota until converted
func (a *Allocator) Reserve(
	ownerUserId string,
	req ReserveRequest,
) (models.Reservation, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = a.config.defaultReservationTtl
	}
	switch req.ResourceType {
	case models.ResourceTypeRegion:
		return a.reserveRegion(ownerUserId, req, ttl)
	case models.ResourceTypeHost:
		return a.reserveHost(ownerUserId, req, ttl)
	default:
		return models.Reservation{}, fmt.Errorf(
			"unknown resource type: %s",
			req.ResourceType,
		)
	}
}

func (a *Allocator) reserveRegion(
	ownerUserId string,
	req ReserveRequest,
	ttl time.Duration,
) (models.Reservation, error) {
	var ret models.Reservation
	if req.Coordinate != nil {
		coord := *req.Coordinate
		if coord.Z != nil {
			return ret, InvalidCoordinateError{
				Octet: "z",
				Value: int(*coord.Z),
			}
		}
		country, ok := a.config.countryTable.ByOctet(coord.X)
		if !ok {
			return ret, InvalidCoordinateError{
				Octet: "x",
				Value: int(coord.X),
			}
		}
		if req.Country != "" && req.Country != country.Name {
			return ret, InvalidCoordinateError{
				Octet: "x",
				Value: int(coord.X),
			}
		}
		err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
			reservation, err := a.createReservationTxn(
				txn,
				ownerUserId,
				models.ResourceTypeRegion,
				coord.X,
				coord.Y,
				nil,
				req.Reason,
				req.Actor,
				ttl,
			)
			if err != nil {
				if errors.Is(err, models.ErrClaimTaken) {
					return ErrCoordinateInUse
				}
				return err
			}
			ret = reservation
			return nil
		})
		if err != nil {
			return models.Reservation{}, err
		}
		return ret, nil
	}
	country, ok := a.config.countryTable.ByName(req.Country)
	if !ok {
		return ret, ErrUnknownCountry
	}
	err := a.claimWithRetry(ownerUserId, func(txn *database.Txn) error {
		x, y, err := capacity.NextFreeRegion(txn, ownerUserId, country)
		if err != nil {
			if errors.Is(err, capacity.ErrExhausted) {
				a.metrics.capacityExhausted.
					WithLabelValues(string(models.ResourceTypeRegion)).Inc()
				return ErrCapacityExhausted
			}
			return err
		}
		reservation, err := a.createReservationTxn(
			txn,
			ownerUserId,
			models.ResourceTypeRegion,
			x,
			y,
			nil,
			req.Reason,
			req.Actor,
			ttl,
		)
		if err != nil {
			return err
		}
		ret = reservation
		return nil
	})
	if err != nil {
		return models.Reservation{}, err
	}
	return ret, nil
}

func (a *Allocator) reserveHost(
	ownerUserId string,
	req ReserveRequest,
	ttl time.Duration,
) (models.Reservation, error) {
	var ret models.Reservation
	if req.Coordinate != nil && req.Coordinate.Z != nil {
		z := *req.Coordinate.Z
		if z < capacity.HostZMin || z > capacity.HostZMax {
			return ret, InvalidCoordinateError{Octet: "z", Value: int(z)}
		}
		err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
			region, err := a.reservationRegionTxn(txn, ownerUserId, req.RegionID)
			if err != nil {
				return err
			}
			reservation, err := a.createReservationTxn(
				txn,
				ownerUserId,
				models.ResourceTypeHost,
				region.XOctet,
				region.YOctet,
				&z,
				req.Reason,
				req.Actor,
				ttl,
			)
			if err != nil {
				if errors.Is(err, models.ErrClaimTaken) {
					return ErrCoordinateInUse
				}
				return err
			}
			ret = reservation
			return nil
		})
		if err != nil {
			return models.Reservation{}, err
		}
		return ret, nil
	}
	err := a.claimWithRetry(ownerUserId, func(txn *database.Txn) error {
		region, err := a.reservationRegionTxn(txn, ownerUserId, req.RegionID)
		if err != nil {
			return err
		}
		z, err := capacity.NextFreeHost(
			txn,
			ownerUserId,
			region.XOctet,
			region.YOctet,
		)
		if err != nil {
			if errors.Is(err, capacity.ErrExhausted) {
				a.metrics.capacityExhausted.
					WithLabelValues(string(models.ResourceTypeHost)).Inc()
				return ErrCapacityExhausted
			}
			return err
		}
		reservation, err := a.createReservationTxn(
			txn,
			ownerUserId,
			models.ResourceTypeHost,
			region.XOctet,
			region.YOctet,
			&z,
			req.Reason,
			req.Actor,
			ttl,
		)
		if err != nil {
			return err
		}
		ret = reservation
		return nil
	})
	if err != nil {
		return models.Reservation{}, err
	}
	return ret, nil
}

// reservationRegionTxn resolves the target region for a host reservation
func (a *Allocator) reservationRegionTxn(
	txn *database.Txn,
	ownerUserId string,
	regionId string,
) (models.Region, error) {
	region, err := models.RegionByIdTxn(txn, regionId)
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

// createReservationTxn claims the coordinate and writes the reservation row
// and its audit record. Returns models.ErrClaimTaken when the coordinate is
// held by a live claim
func (a *Allocator) createReservationTxn(
	txn *database.Txn,
	ownerUserId string,
	resourceType models.ResourceType,
	x, y uint8,
	z *uint8,
	reason string,
	actor string,
	ttl time.Duration,
) (models.Reservation, error) {
	expiresAt := time.Now().Add(ttl)
	reservation := models.Reservation{
		ID:           uuid.NewString(),
		OwnerUserID:  ownerUserId,
		ResourceType: resourceType,
		XOctet:       x,
		YOctet:       y,
		ZOctet:       z,
		Reason:       reason,
		Status:       models.ReservationStatusActive,
		ExpiresAt:    expiresAt,
	}
	claimZ := uint8(0)
	if z != nil {
		claimZ = *z
	}
	claim := models.Claim{
		OwnerUserID: ownerUserId,
		XOctet:      x,
		YOctet:      y,
		ZOctet:      claimZ,
		Kind:        models.ClaimKindReservation,
		ResourceID:  reservation.ID,
		ExpiresAt:   &expiresAt,
	}
	if err := a.claimCoordinate(txn, &claim); err != nil {
		return models.Reservation{}, err
	}
	if err := models.ReservationCreateTxn(txn, &reservation); err != nil {
		return models.Reservation{}, err
	}
	auditId, err := a.appendAudit(
		txn,
		ledger.Record{
			OwnerUserID:  ownerUserId,
			EventType:    string(ReservationCreateEventType),
			ResourceType: string(resourceType),
			ResourceID:   reservation.ID,
			After:        mustJson(reservation),
			Actor:        actor,
			Reason:       reason,
		},
	)
	if err != nil {
		return models.Reservation{}, err
	}
	txn.OnCommit(func() {
		a.publishResourceEvent(
			ReservationCreateEventType,
			ownerUserId,
			resourceType,
			reservation.ID,
			auditId,
			reservationAddress(reservation),
		)
	})
	return reservation, nil
}

// ConvertParams carries the metadata for the resource created by converting a
// reservation. Exactly one of Region or Host must be set, matching the
// reservation's resource type
type ConvertParams struct {
	Region *RegionParams
	Host   *HostParams
	Actor  string
}

// ConvertedResource is the result of a reservation conversion
type ConvertedResource struct {
	Region  *models.Region
	Host    *models.Host
	AuditID string
}

// ConvertReservation turns an active reservation into a real allocation at
// the reserved coordinate. Conversion consumes quota; a user at their ceiling
// gets ErrQuotaExceeded and the reservation stays active. The reservation and
// the new resource change together under a single audit record
func (a *Allocator) ConvertReservation(
	ownerUserId string,
	reservationId string,
	params ConvertParams,
) (ConvertedResource, error) {
	var ret ConvertedResource
	err := a.userTxn(ownerUserId, func(txn *database.Txn) error {
		reservation, err := models.ReservationByIdTxn(txn, reservationId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if reservation.OwnerUserID != ownerUserId {
			return ErrNotFound
		}
		if !reservation.Active(time.Now()) {
			return ErrReservationNotActive
		}
		claim, err := models.ClaimByResourceTxn(txn, reservation.ID)
		if err != nil {
			return fmt.Errorf("failed to load reservation claim: %w", err)
		}
		before := mustJson(reservation)
		if err := a.reserveQuota(txn, ownerUserId, reservation.ResourceType); err != nil {
			return err
		}
		var resourceId string
		var address string
		switch reservation.ResourceType {
		case models.ResourceTypeRegion:
			if params.Region == nil {
				return fmt.Errorf("missing region params for region reservation")
			}
			country, ok := a.config.countryTable.ByOctet(reservation.XOctet)
			if !ok {
				return fmt.Errorf(
					"reserved x octet %d not in country table",
					reservation.XOctet,
				)
			}
			region := models.Region{
				ID:          uuid.NewString(),
				OwnerUserID: ownerUserId,
				Country:     country.Name,
				XOctet:      reservation.XOctet,
				YOctet:      reservation.YOctet,
				Name:        params.Region.Name,
				Status:      models.RegionStatusActive,
				OwnerLabel:  params.Region.OwnerLabel,
				Tags:        params.Region.Tags,
				CreatedBy:   params.Actor,
				UpdatedBy:   params.Actor,
			}
			if err := models.RegionCreateTxn(txn, &region); err != nil {
				return err
			}
			claim.Kind = models.ClaimKindRegion
			claim.ResourceID = region.ID
			ret.Region = &region
			resourceId = region.ID
			address = fmt.Sprintf("10.%d.%d.0/24", region.XOctet, region.YOctet)
		case models.ResourceTypeHost:
			if params.Host == nil {
				return fmt.Errorf("missing host params for host reservation")
			}
			if reservation.ZOctet == nil {
				return fmt.Errorf(
					"host reservation %s has no z octet",
					reservation.ID,
				)
			}
			region, err := models.RegionByCoordTxn(
				txn,
				ownerUserId,
				reservation.XOctet,
				reservation.YOctet,
			)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// The containing region was released while the
					// reservation was held
					return ErrNotFound
				}
				return err
			}
			host := models.Host{
				ID:          uuid.NewString(),
				OwnerUserID: ownerUserId,
				RegionID:    region.ID,
				XOctet:      reservation.XOctet,
				YOctet:      reservation.YOctet,
				ZOctet:      *reservation.ZOctet,
				Hostname:    params.Host.Hostname,
				DeviceType:  params.Host.DeviceType,
				Status:      models.HostStatusActive,
				Tags:        params.Host.Tags,
				Notes:       params.Host.Notes,
				CreatedBy:   params.Actor,
				UpdatedBy:   params.Actor,
			}
			if err := models.HostCreateTxn(txn, &host); err != nil {
				return err
			}
			claim.Kind = models.ClaimKindHost
			claim.ResourceID = host.ID
			ret.Host = &host
			resourceId = host.ID
			address = fmt.Sprintf(
				"10.%d.%d.%d",
				host.XOctet,
				host.YOctet,
				host.ZOctet,
			)
		default:
			return fmt.Errorf(
				"unknown resource type: %s",
				reservation.ResourceType,
			)
		}
		// The claim becomes permanent
		claim.ExpiresAt = nil
		if err := models.ClaimUpdateTxn(txn, &claim); err != nil {
			return err
		}
		reservation.Status = models.ReservationStatusConverted
		if err := models.ReservationUpdateTxn(txn, &reservation); err != nil {
			return err
		}
		var after []byte
		if ret.Region != nil {
			after = mustJson(*ret.Region)
		} else {
			after = mustJson(*ret.Host)
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(ReservationConvertEventType),
				ResourceType: string(reservation.ResourceType),
				ResourceID:   resourceId,
				Before:       before,
				After:        after,
				Actor:        params.Actor,
			},
		)
		if err != nil {
			return err
		}
		ret.AuditID = auditId
		resourceType := reservation.ResourceType
		txn.OnCommit(func() {
			a.metrics.claims.WithLabelValues(string(resourceType)).Inc()
			a.publishResourceEvent(
				ReservationConvertEventType,
				ownerUserId,
				resourceType,
				resourceId,
				auditId,
				address,
			)
		})
		return nil
	})
	if err != nil {
		return ConvertedResource{}, err
	}
	return ret, nil
}

// CancelReservation releases an active reservation's hold before its TTL
// passes
func (a *Allocator) CancelReservation(
	ownerUserId string,
	reservationId string,
	reason string,
	actor string,
) error {
	return a.userTxn(ownerUserId, func(txn *database.Txn) error {
		reservation, err := models.ReservationByIdTxn(txn, reservationId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if reservation.OwnerUserID != ownerUserId {
			return ErrNotFound
		}
		if !reservation.Active(time.Now()) {
			return ErrReservationNotActive
		}
		before := mustJson(reservation)
		if err := a.dropReservationClaimTxn(txn, reservation.ID); err != nil {
			return err
		}
		reservation.Status = models.ReservationStatusCancelled
		if err := models.ReservationUpdateTxn(txn, &reservation); err != nil {
			return err
		}
		auditId, err := a.appendAudit(
			txn,
			ledger.Record{
				OwnerUserID:  ownerUserId,
				EventType:    string(ReservationCancelEventType),
				ResourceType: string(reservation.ResourceType),
				ResourceID:   reservation.ID,
				Before:       before,
				Actor:        actor,
				Reason:       reason,
			},
		)
		if err != nil {
			return err
		}
		txn.OnCommit(func() {
			a.publishResourceEvent(
				ReservationCancelEventType,
				ownerUserId,
				reservation.ResourceType,
				reservation.ID,
				auditId,
				reservationAddress(reservation),
			)
		})
		return nil
	})
}

// dropReservationClaimTxn removes the reservation's claim row if it still
// exists. The claim may already be gone if the coordinate was taken over
// after expiry
func (a *Allocator) dropReservationClaimTxn(
	txn *database.Txn,
	reservationId string,
) error {
	claim, err := models.ClaimByResourceTxn(txn, reservationId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return models.ClaimDeleteTxn(txn, claim)
}

// scheduleReservationSweep schedules the next run of the expired reservation
// sweep
func (a *Allocator) scheduleReservationSweep() {
	a.sweepMutex.Lock()
	defer a.sweepMutex.Unlock()
	if a.closed {
		return
	}
	a.sweepTimer = time.AfterFunc(
		a.config.reservationSweepDelay,
		func() {
			// Schedule the next run
			defer a.scheduleReservationSweep()
			if err := a.sweepExpiredReservations(); err != nil {
				a.config.logger.Error(
					fmt.Sprintf(
						"failed to sweep expired reservations: %s",
						err,
					),
					"component", "allocator",
				)
			}
		},
	)
}

// sweepExpiredReservations marks expired reservations and removes their stale
// claims. The sweep is cleanup, not correctness: expired claims are already
// treated as free by the capacity index and takeover path
func (a *Allocator) sweepExpiredReservations() error {
	var expired []models.Reservation
	txn := a.db.Transaction(false)
	err := txn.Do(func(txn *database.Txn) error {
		var err error
		expired, err = models.ReservationsExpiredTxn(
			txn,
			time.Now(),
			reservationSweepBatchLimit,
		)
		return err
	})
	if err != nil {
		return err
	}
	for _, reservation := range expired {
		err := a.userTxn(
			reservation.OwnerUserID,
			func(txn *database.Txn) error {
				return a.expireReservationTxn(txn, reservation.ID)
			},
		)
		if err != nil {
			return err
		}
	}
	if len(expired) > 0 {
		a.config.logger.Debug(
			fmt.Sprintf("swept %d expired reservation(s)", len(expired)),
			"component", "allocator",
		)
	}
	return nil
}

// expireReservationTxn re-reads the reservation under the user lock and marks
// it expired if it's still active past its TTL
func (a *Allocator) expireReservationTxn(
	txn *database.Txn,
	reservationId string,
) error {
	reservation, err := models.ReservationByIdTxn(txn, reservationId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	// Someone converted, cancelled, or already expired it since we listed it
	if reservation.Status != models.ReservationStatusActive ||
		reservation.ExpiresAt.After(time.Now()) {
		return nil
	}
	before := mustJson(reservation)
	if err := a.dropReservationClaimTxn(txn, reservation.ID); err != nil {
		return err
	}
	reservation.Status = models.ReservationStatusExpired
	if err := models.ReservationUpdateTxn(txn, &reservation); err != nil {
		return err
	}
	auditId, err := a.appendAudit(
		txn,
		ledger.Record{
			OwnerUserID:  reservation.OwnerUserID,
			EventType:    string(ReservationExpireEventType),
			ResourceType: string(reservation.ResourceType),
			ResourceID:   reservation.ID,
			Before:       before,
			Actor:        "system",
		},
	)
	if err != nil {
		return err
	}
	txn.OnCommit(func() {
		a.metrics.reservationsSwept.Inc()
		a.publishResourceEvent(
			ReservationExpireEventType,
			reservation.OwnerUserID,
			reservation.ResourceType,
			reservation.ID,
			auditId,
			reservationAddress(reservation),
		)
	})
	return nil
}

// reservationAddress renders the address a reservation holds
func reservationAddress(reservation models.Reservation) string {
	if reservation.ZOctet != nil {
		return fmt.Sprintf(
			"10.%d.%d.%d",
			reservation.XOctet,
			reservation.YOctet,
			*reservation.ZOctet,
		)
	}
	return fmt.Sprintf(
		"10.%d.%d.0/24",
		reservation.XOctet,
		reservation.YOctet,
	)
}
