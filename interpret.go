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
	"net/netip"

	"github.com/blinklabs-io/addrspace/countries"
	"github.com/blinklabs-io/addrspace/models"
	"gorm.io/gorm"
)

// Interpretation decomposes an address into its hierarchy levels within one
// user's space. Levels that don't resolve are nil: an address in an
// unassigned country block has all three nil, an address in a known country
// with no region allocated there has Region and Host nil, and a region
// address (z octet 0) never resolves a host
type Interpretation struct {
	Address string
	Country *countries.CountryBlock
	Region  *models.Region
	Host    *models.Host
}

// Interpret resolves a dotted-quad address against the user's allocations.
// Addresses outside 10.0.0.0/8 fail with ErrInvalidAddress
func (a *Allocator) Interpret(
	ownerUserId string,
	address string,
) (Interpretation, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return Interpretation{}, ErrInvalidAddress
	}
	if !addr.Is4() {
		return Interpretation{}, ErrInvalidAddress
	}
	octets := addr.As4()
	if octets[0] != 10 {
		return Interpretation{}, ErrInvalidAddress
	}
	x := octets[1]
	y := octets[2]
	z := octets[3]
	ret := Interpretation{
		Address: address,
	}
	country, ok := a.config.countryTable.ByOctet(x)
	if !ok {
		return ret, nil
	}
	ret.Country = &country
	region, err := models.RegionByCoord(a.db, ownerUserId, x, y)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ret, nil
		}
		return Interpretation{}, err
	}
	ret.Region = &region
	if z == 0 {
		return ret, nil
	}
	host, err := models.HostByCoord(a.db, ownerUserId, x, y, z)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ret, nil
		}
		return Interpretation{}, err
	}
	ret.Host = &host
	return ret, nil
}
