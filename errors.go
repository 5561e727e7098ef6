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
)

var (
	// ErrCapacityExhausted is returned when every coordinate in the requested
	// scope is allocated or reserved
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrQuotaExceeded is returned when a claim would push the user past
	// their configured ceiling
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrAllocationContention is returned when the claim retry budget is
	// exhausted without finding a free coordinate. This signals pathological
	// contention rather than real exhaustion
	ErrAllocationContention = errors.New("allocation retry budget exhausted")

	// ErrNotFound is returned for unknown resource or reservation ids
	ErrNotFound = errors.New("resource not found")

	// ErrNotEmpty is returned when releasing a region that still has hosts
	// without cascade
	ErrNotEmpty = errors.New("region is not empty")

	// ErrCoordinateInUse is returned when an explicitly requested coordinate
	// is already allocated or reserved
	ErrCoordinateInUse = errors.New("coordinate already in use")

	// ErrReservationNotActive is returned when converting or cancelling a
	// reservation that already expired, converted, or was cancelled
	ErrReservationNotActive = errors.New("reservation is not active")

	// ErrUnknownCountry is returned when the named country isn't in the
	// configured country table
	ErrUnknownCountry = errors.New("unknown country")

	// ErrInvalidAddress is returned by Interpret for addresses outside the
	// managed 10.0.0.0/8 range or that fail to parse
	ErrInvalidAddress = errors.New("invalid address")
)

// InvalidCoordinateError is returned for out-of-range x/y/z values. z values
// 0 and 255 are never valid host octets
type InvalidCoordinateError struct {
	Octet string
	Value int
}

func (e InvalidCoordinateError) Error() string {
	return fmt.Sprintf(
		"invalid coordinate: %s octet value %d out of range",
		e.Octet,
		e.Value,
	)
}
