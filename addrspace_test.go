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

package addrspace_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/addrspace"
	"github.com/blinklabs-io/addrspace/countries"
	"github.com/blinklabs-io/addrspace/ledger"
	"github.com/blinklabs-io/addrspace/models"
	badger "github.com/dgraph-io/badger/v4"
)

const (
	testUser  = "user-1"
	testActor = "tester"
)

func newTestAllocator(
	t *testing.T,
	opts ...addrspace.ConfigOptionFunc,
) *addrspace.Allocator {
	t.Helper()
	a, err := addrspace.New(addrspace.NewConfig(opts...))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	t.Cleanup(func() {
		a.Close()
	})
	return a
}

func allocRegion(
	t *testing.T,
	a *addrspace.Allocator,
	user string,
	country string,
) models.Region {
	t.Helper()
	region, err := a.AllocateRegion(user, country, addrspace.RegionParams{
		Name:  "test region",
		Actor: testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return region
}

func allocHost(
	t *testing.T,
	a *addrspace.Allocator,
	user string,
	regionId string,
) models.Host {
	t.Helper()
	host, err := a.AllocateHost(user, regionId, addrspace.HostParams{
		Hostname: "test-host",
		Actor:    testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return host
}

func singleOctetTable(t *testing.T) *countries.Table {
	t.Helper()
	table, err := countries.NewTable([]countries.CountryBlock{
		{Name: "Testland", Continent: "Atlantis", XStart: 0, XEnd: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return table
}

func TestAllocateRegionOrdering(t *testing.T) {
	a := newTestAllocator(t)
	// India owns octets 0-15 in the default table, so sequential allocations
	// walk (0, 0), (0, 1), (0, 2)
	for i := 0; i < 3; i++ {
		region := allocRegion(t, a, testUser, "India")
		if region.XOctet != 0 || region.YOctet != uint8(i) {
			t.Fatalf(
				"did not get expected coordinate, got (%d, %d), wanted (0, %d)",
				region.XOctet,
				region.YOctet,
				i,
			)
		}
		if region.Country != "India" ||
			region.Status != models.RegionStatusActive {
			t.Fatalf("did not get expected region, got %+v", region)
		}
	}
	_, err := a.AllocateRegion(testUser, "Atlantis", addrspace.RegionParams{})
	if !errors.Is(err, addrspace.ErrUnknownCountry) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrUnknownCountry,
		)
	}
}

func TestAllocateHostOrdering(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	for i := 0; i < 3; i++ {
		host := allocHost(t, a, testUser, region.ID)
		if host.ZOctet != uint8(i+1) {
			t.Fatalf(
				"did not get expected z octet, got %d, wanted %d",
				host.ZOctet,
				i+1,
			)
		}
		if host.XOctet != region.XOctet || host.YOctet != region.YOctet {
			t.Fatalf("host not within region, got %+v", host)
		}
	}
	_, err := a.AllocateHost(testUser, "bogus-id", addrspace.HostParams{})
	if !errors.Is(err, addrspace.ErrNotFound) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrNotFound,
		)
	}
	// Another user's region is invisible
	_, err = a.AllocateHost("user-2", region.ID, addrspace.HostParams{})
	if !errors.Is(err, addrspace.ErrNotFound) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrNotFound,
		)
	}
}

func TestConcurrentAllocationsNoCollision(t *testing.T) {
	a := newTestAllocator(t)
	const workers = 16
	var wg sync.WaitGroup
	var mutex sync.Mutex
	coords := make(map[string]int)
	errs := []error{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			region, err := a.AllocateRegion(
				testUser,
				"India",
				addrspace.RegionParams{Actor: testActor},
			)
			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			coords[fmt.Sprintf("%d.%d", region.XOctet, region.YOctet)]++
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("unexpected error(s): %v", errs)
	}
	if len(coords) != workers {
		t.Fatalf(
			"expected %d distinct coordinates, got %d: %v",
			workers,
			len(coords),
			coords,
		)
	}
	for coord, count := range coords {
		if count != 1 {
			t.Fatalf("coordinate %s allocated %d times", coord, count)
		}
	}
}

func TestRegionExhaustion(t *testing.T) {
	a := newTestAllocator(
		t,
		addrspace.WithCountryTable(singleOctetTable(t)),
		addrspace.WithDefaultRegionQuota(300),
	)
	for i := 0; i < 256; i++ {
		region := allocRegion(t, a, testUser, "Testland")
		if region.YOctet != uint8(i) {
			t.Fatalf(
				"did not get expected y octet, got %d, wanted %d",
				region.YOctet,
				i,
			)
		}
	}
	_, err := a.AllocateRegion(testUser, "Testland", addrspace.RegionParams{})
	if !errors.Is(err, addrspace.ErrCapacityExhausted) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrCapacityExhausted,
		)
	}
}

func TestReleaseAndReuse(t *testing.T) {
	a := newTestAllocator(t)
	first := allocRegion(t, a, testUser, "India")
	allocRegion(t, a, testUser, "India")
	result, err := a.Release(testUser, first.ID, false, "decommissioned", testActor)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.ResourceType != models.ResourceTypeRegion ||
		result.AuditID == "" {
		t.Fatalf("did not get expected result, got %+v", result)
	}
	// The freed coordinate is the lowest again
	next := allocRegion(t, a, testUser, "India")
	if next.XOctet != first.XOctet || next.YOctet != first.YOctet {
		t.Fatalf(
			"did not reuse freed coordinate, got (%d, %d), wanted (%d, %d)",
			next.XOctet,
			next.YOctet,
			first.XOctet,
			first.YOctet,
		)
	}
	quota, err := a.GetQuota(testUser)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if quota.RegionCount != 2 {
		t.Fatalf(
			"did not get expected region count, got %d, wanted 2",
			quota.RegionCount,
		)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	if _, err := a.Release(testUser, region.ID, false, "", testActor); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	result, err := a.Release(testUser, region.ID, false, "", testActor)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !result.AlreadyReleased {
		t.Fatalf("repeated release not reported as already released")
	}
	_, err = a.Release(testUser, "bogus-id", false, "", testActor)
	if !errors.Is(err, addrspace.ErrNotFound) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrNotFound,
		)
	}
}

func TestReleaseNonEmptyRegion(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	host := allocHost(t, a, testUser, region.ID)
	_, err := a.Release(testUser, region.ID, false, "", testActor)
	if !errors.Is(err, addrspace.ErrNotEmpty) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrNotEmpty,
		)
	}
	result, err := a.Release(testUser, region.ID, true, "", testActor)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.ReleasedHosts != 1 {
		t.Fatalf(
			"did not get expected released host count, got %d, wanted 1",
			result.ReleasedHosts,
		)
	}
	if _, err := a.GetHost(testUser, host.ID); !errors.Is(err, addrspace.ErrNotFound) {
		t.Fatalf("cascaded host still present")
	}
	quota, err := a.GetQuota(testUser)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if quota.RegionCount != 0 || quota.HostCount != 0 {
		t.Fatalf("quota counts not released, got %+v", quota)
	}
}

func TestQuotaEnforcement(t *testing.T) {
	a := newTestAllocator(t, addrspace.WithDefaultRegionQuota(2))
	allocRegion(t, a, testUser, "India")
	second := allocRegion(t, a, testUser, "India")
	_, err := a.AllocateRegion(testUser, "India", addrspace.RegionParams{})
	if !errors.Is(err, addrspace.ErrQuotaExceeded) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrQuotaExceeded,
		)
	}
	// Releasing frees quota for a new claim
	if _, err := a.Release(testUser, second.ID, false, "", testActor); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	allocRegion(t, a, testUser, "India")
}

func TestQuotaEnforcementConcurrent(t *testing.T) {
	const quota = 5
	const workers = 10
	a := newTestAllocator(t, addrspace.WithDefaultRegionQuota(quota))
	var wg sync.WaitGroup
	var mutex sync.Mutex
	var succeeded, rejected int
	errs := []error{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.AllocateRegion(
				testUser,
				"India",
				addrspace.RegionParams{Actor: testActor},
			)
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, addrspace.ErrQuotaExceeded):
				rejected++
			default:
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("unexpected error(s): %v", errs)
	}
	// The ceiling must hold exactly under concurrency
	if succeeded != quota || rejected != workers-quota {
		t.Fatalf(
			"did not get expected outcome, got %d succeeded / %d rejected, wanted %d / %d",
			succeeded,
			rejected,
			quota,
			workers-quota,
		)
	}
}

func TestSetQuota(t *testing.T) {
	a := newTestAllocator(t)
	allocRegion(t, a, testUser, "India")
	allocRegion(t, a, testUser, "India")
	// Lowering below current usage keeps existing resources but blocks new
	// claims
	quota, err := a.SetQuota(testUser, 1, 10, testActor)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if quota.RegionQuota != 1 || quota.RegionCount != 2 {
		t.Fatalf("did not get expected quota, got %+v", quota)
	}
	_, err = a.AllocateRegion(testUser, "India", addrspace.RegionParams{})
	if !errors.Is(err, addrspace.ErrQuotaExceeded) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrQuotaExceeded,
		)
	}
}

func TestReserveExplicitCoordinate(t *testing.T) {
	a := newTestAllocator(t)
	reservation, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 5},
		Reason:       "future expansion",
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if reservation.XOctet != 0 || reservation.YOctet != 5 ||
		reservation.Status != models.ReservationStatusActive {
		t.Fatalf("did not get expected reservation, got %+v", reservation)
	}
	// The held coordinate conflicts immediately, no retry
	_, err = a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 5},
		Actor:        testActor,
	})
	if !errors.Is(err, addrspace.ErrCoordinateInUse) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrCoordinateInUse,
		)
	}
	// Reservations don't consume quota until converted
	quota, err := a.GetQuota(testUser)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if quota.RegionCount != 0 {
		t.Fatalf(
			"reservation consumed quota, got count %d",
			quota.RegionCount,
		)
	}
	// An x octet outside every country block is rejected
	_, err = a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 250, Y: 0},
		Actor:        testActor,
	})
	var coordErr addrspace.InvalidCoordinateError
	if !errors.As(err, &coordErr) || coordErr.Octet != "x" {
		t.Fatalf("did not get expected error, got %v", err)
	}
}

func TestReservationOccupiesCoordinate(t *testing.T) {
	a := newTestAllocator(t)
	// Hold the lowest coordinate
	_, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 0},
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	region := allocRegion(t, a, testUser, "India")
	if region.XOctet != 0 || region.YOctet != 1 {
		t.Fatalf(
			"allocation did not skip reserved coordinate, got (%d, %d)",
			region.XOctet,
			region.YOctet,
		)
	}
}

func TestReservationConversion(t *testing.T) {
	a := newTestAllocator(t)
	reservation, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Country:      "India",
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	converted, err := a.ConvertReservation(
		testUser,
		reservation.ID,
		addrspace.ConvertParams{
			Region: &addrspace.RegionParams{Name: "converted region"},
			Actor:  testActor,
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if converted.Region == nil ||
		converted.Region.XOctet != reservation.XOctet ||
		converted.Region.YOctet != reservation.YOctet {
		t.Fatalf("did not get expected region, got %+v", converted)
	}
	// Conversion consumes quota
	quota, err := a.GetQuota(testUser)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if quota.RegionCount != 1 {
		t.Fatalf(
			"did not get expected region count, got %d, wanted 1",
			quota.RegionCount,
		)
	}
	// A reservation converts at most once
	_, err = a.ConvertReservation(
		testUser,
		reservation.ID,
		addrspace.ConvertParams{
			Region: &addrspace.RegionParams{},
			Actor:  testActor,
		},
	)
	if !errors.Is(err, addrspace.ErrReservationNotActive) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrReservationNotActive,
		)
	}
}

func TestReservationConversionQuotaFull(t *testing.T) {
	a := newTestAllocator(t, addrspace.WithDefaultRegionQuota(1))
	allocRegion(t, a, testUser, "India")
	reservation, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Country:      "India",
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	_, err = a.ConvertReservation(
		testUser,
		reservation.ID,
		addrspace.ConvertParams{
			Region: &addrspace.RegionParams{},
			Actor:  testActor,
		},
	)
	if !errors.Is(err, addrspace.ErrQuotaExceeded) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrQuotaExceeded,
		)
	}
	// The failed conversion leaves the reservation active
	reservations, err := a.ListReservations(testUser)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(reservations) != 1 ||
		reservations[0].Status != models.ReservationStatusActive {
		t.Fatalf("did not get expected reservations, got %+v", reservations)
	}
}

func TestReservationCancel(t *testing.T) {
	a := newTestAllocator(t)
	reservation, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 3},
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	err = a.CancelReservation(testUser, reservation.ID, "not needed", testActor)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// The coordinate is free again
	_, err = a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 3},
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	err = a.CancelReservation(testUser, reservation.ID, "", testActor)
	if !errors.Is(err, addrspace.ErrReservationNotActive) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrReservationNotActive,
		)
	}
}

func TestReservationExpiryTakeover(t *testing.T) {
	a := newTestAllocator(t)
	reservation, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 0},
		TTL:          10 * time.Millisecond,
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	time.Sleep(50 * time.Millisecond)
	// The expired hold no longer occupies the lowest coordinate
	region := allocRegion(t, a, testUser, "India")
	if region.XOctet != 0 || region.YOctet != 0 {
		t.Fatalf(
			"did not take over expired coordinate, got (%d, %d)",
			region.XOctet,
			region.YOctet,
		)
	}
	reservations, err := a.ListReservations(testUser)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(reservations) != 1 ||
		reservations[0].ID != reservation.ID ||
		reservations[0].Status != models.ReservationStatusExpired {
		t.Fatalf("did not get expected reservations, got %+v", reservations)
	}
}

func TestReservationSweep(t *testing.T) {
	a := newTestAllocator(
		t,
		addrspace.WithReservationSweepDelay(25*time.Millisecond),
	)
	_, err := a.Reserve(testUser, addrspace.ReserveRequest{
		ResourceType: models.ResourceTypeRegion,
		Coordinate:   &addrspace.Coordinate{X: 0, Y: 0},
		TTL:          10 * time.Millisecond,
		Actor:        testActor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// Wait for the sweep to pick it up
	var swept bool
	for i := 0; i < 40; i++ {
		time.Sleep(25 * time.Millisecond)
		reservations, err := a.ListReservations(testUser)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if len(reservations) == 1 &&
			reservations[0].Status == models.ReservationStatusExpired {
			swept = true
			break
		}
	}
	if !swept {
		t.Fatalf("reservation was not swept")
	}
	records, err := a.QueryAuditHistory(testUser, ledger.Filter{
		EventTypes: []string{string(addrspace.ReservationExpireEventType)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(records) != 1 {
		t.Fatalf(
			"did not get expected audit record count, got %d, wanted 1",
			len(records),
		)
	}
}

func TestAuditTrail(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	host := allocHost(t, a, testUser, region.ID)
	if _, err := a.Release(testUser, host.ID, false, "retired", testActor); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	records, err := a.QueryAuditHistory(testUser, ledger.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	wantedTypes := []string{
		string(addrspace.RegionAllocateEventType),
		string(addrspace.HostAllocateEventType),
		string(addrspace.HostReleaseEventType),
	}
	if len(records) != len(wantedTypes) {
		t.Fatalf(
			"did not get expected record count, got %d, wanted %d",
			len(records),
			len(wantedTypes),
		)
	}
	for i, record := range records {
		if record.EventType != wantedTypes[i] {
			t.Fatalf(
				"did not get expected event type at %d, got %s, wanted %s",
				i,
				record.EventType,
				wantedTypes[i],
			)
		}
	}
	// Host history via filter
	hostRecords, err := a.QueryAuditHistory(testUser, ledger.Filter{
		ResourceID: host.ID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(hostRecords) != 2 {
		t.Fatalf(
			"did not get expected record count, got %d, wanted 2",
			len(hostRecords),
		)
	}
	report, err := a.VerifyIntegrity(testUser, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !report.Ok() || report.TotalChecked != 3 {
		t.Fatalf("expected intact chain, got %+v", report)
	}
}

func TestAuditTamperDetection(t *testing.T) {
	a := newTestAllocator(t)
	allocRegion(t, a, testUser, "India")
	allocRegion(t, a, testUser, "India")
	records, err := a.QueryAuditHistory(testUser, ledger.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(records) != 2 {
		t.Fatalf(
			"did not get expected record count, got %d, wanted 2",
			len(records),
		)
	}
	// Rewrite the first record's payload directly in the ledger store
	tampered := records[0]
	tampered.Actor = "mallory"
	tamperedJson, err := json.Marshal(tampered)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	err = a.Database().Ledger().Update(func(txn *badger.Txn) error {
		return txn.Set(ledger.RecordKey(testUser, 1), tamperedJson)
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	report, err := a.VerifyIntegrity(testUser, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if report.Ok() {
		t.Fatalf("tampered chain verified clean")
	}
	if len(report.CorruptedRecords) != 1 ||
		report.CorruptedRecords[0] != records[0].AuditID {
		t.Fatalf(
			"did not flag expected record, got %v, wanted [%s]",
			report.CorruptedRecords,
			records[0].AuditID,
		)
	}
}

func TestInterpret(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	host := allocHost(t, a, testUser, region.ID)
	hostAddr := fmt.Sprintf("10.%d.%d.%d", host.XOctet, host.YOctet, host.ZOctet)
	result, err := a.Interpret(testUser, hostAddr)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.Country == nil || result.Country.Name != "India" {
		t.Fatalf("did not resolve country, got %+v", result)
	}
	if result.Region == nil || result.Region.ID != region.ID {
		t.Fatalf("did not resolve region, got %+v", result)
	}
	if result.Host == nil || result.Host.ID != host.ID {
		t.Fatalf("did not resolve host, got %+v", result)
	}
	// The region address itself never resolves a host
	regionAddr := fmt.Sprintf("10.%d.%d.0", region.XOctet, region.YOctet)
	result, err = a.Interpret(testUser, regionAddr)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.Region == nil || result.Host != nil {
		t.Fatalf("did not get expected result, got %+v", result)
	}
	// Another user sees nothing at the same address
	result, err = a.Interpret("user-2", hostAddr)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.Country == nil || result.Region != nil || result.Host != nil {
		t.Fatalf("did not get expected result, got %+v", result)
	}
	// Outside the managed range
	for _, addr := range []string{"11.0.0.1", "192.168.0.1", "not-an-address"} {
		if _, err := a.Interpret(testUser, addr); !errors.Is(err, addrspace.ErrInvalidAddress) {
			t.Fatalf(
				"did not get expected error for %s, got %v, wanted %v",
				addr,
				err,
				addrspace.ErrInvalidAddress,
			)
		}
	}
}

func TestUpdateMetadata(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	newName := "renamed region"
	newStatus := models.RegionStatusRetired
	updated, err := a.UpdateRegionMetadata(
		testUser,
		region.ID,
		addrspace.RegionUpdate{
			Name:   &newName,
			Status: &newStatus,
		},
		testActor,
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if updated.Name != newName || updated.Status != newStatus {
		t.Fatalf("did not get expected region, got %+v", updated)
	}
	// Coordinates are immutable across updates
	if updated.XOctet != region.XOctet || updated.YOctet != region.YOctet {
		t.Fatalf("update changed coordinates, got %+v", updated)
	}
	host := allocHost(t, a, testUser, region.ID)
	newHostname := "db-01"
	updatedHost, err := a.UpdateHostMetadata(
		testUser,
		host.ID,
		addrspace.HostUpdate{
			Hostname: &newHostname,
		},
		testActor,
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if updatedHost.Hostname != newHostname {
		t.Fatalf("did not get expected host, got %+v", updatedHost)
	}
	_, err = a.UpdateRegionMetadata(
		"user-2",
		region.ID,
		addrspace.RegionUpdate{Name: &newName},
		testActor,
	)
	if !errors.Is(err, addrspace.ErrNotFound) {
		t.Fatalf(
			"did not get expected error, got %v, wanted %v",
			err,
			addrspace.ErrNotFound,
		)
	}
}

func TestRegionComments(t *testing.T) {
	a := newTestAllocator(t)
	region := allocRegion(t, a, testUser, "India")
	for _, body := range []string{"first", "second", "third"} {
		_, err := a.AddRegionComment(testUser, region.ID, testActor, body)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	comments, err := a.ListRegionComments(testUser, region.ID)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(comments) != 3 {
		t.Fatalf(
			"did not get expected comment count, got %d, wanted 3",
			len(comments),
		)
	}
	for i, body := range []string{"first", "second", "third"} {
		if comments[i].Body != body {
			t.Fatalf(
				"comments out of order, got %s at %d, wanted %s",
				comments[i].Body,
				i,
				body,
			)
		}
	}
}

func TestUserIsolation(t *testing.T) {
	a := newTestAllocator(t)
	regionA := allocRegion(t, a, "user-a", "India")
	regionB := allocRegion(t, a, "user-b", "India")
	// Both users get the lowest coordinate in their own space
	if regionA.XOctet != regionB.XOctet || regionA.YOctet != regionB.YOctet {
		t.Fatalf(
			"users did not get identical coordinates, got (%d, %d) and (%d, %d)",
			regionA.XOctet,
			regionA.YOctet,
			regionB.XOctet,
			regionB.YOctet,
		)
	}
	if _, err := a.GetRegion("user-b", regionA.ID); !errors.Is(err, addrspace.ErrNotFound) {
		t.Fatalf("cross-user region access not rejected, got %v", err)
	}
	regions, err := a.ListRegions("user-a")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(regions) != 1 || regions[0].ID != regionA.ID {
		t.Fatalf("did not get expected regions, got %+v", regions)
	}
}
