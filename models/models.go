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
	"strings"

	"gorm.io/gorm"
)

// MigrateModels is the list of model objects to auto-migrate the table schemas for
var MigrateModels = []any{
	&Claim{},
	&Region{},
	&RegionComment{},
	&Host{},
	&Reservation{},
	&Quota{},
}

// ResourceType identifies the kind of allocatable resource
type ResourceType string

const (
	ResourceTypeRegion ResourceType = "region"
	ResourceTypeHost   ResourceType = "host"
)

// ErrClaimTaken is returned when a coordinate insert loses to an existing claim
var ErrClaimTaken = errors.New("coordinate already claimed")

// isUniqueViolation determines whether an error from the metadata DB
// represents a unique constraint failure. The glebarez sqlite driver doesn't
// translate to gorm.ErrDuplicatedKey in all paths, so we also match on the
// sqlite error text
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
