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
	"github.com/blinklabs-io/addrspace/event"
	"github.com/blinklabs-io/addrspace/models"
)

// Event types published on the event bus. The string values double as the
// audit ledger event types so subscribers and audit queries share a
// vocabulary
const (
	RegionAllocateEventType     event.EventType = "region.allocate"
	RegionReleaseEventType      event.EventType = "region.release"
	RegionUpdateEventType       event.EventType = "region.update"
	RegionCommentEventType      event.EventType = "region.comment"
	HostAllocateEventType       event.EventType = "host.allocate"
	HostReleaseEventType        event.EventType = "host.release"
	HostUpdateEventType         event.EventType = "host.update"
	ReservationCreateEventType  event.EventType = "reservation.create"
	ReservationConvertEventType event.EventType = "reservation.convert"
	ReservationCancelEventType  event.EventType = "reservation.cancel"
	ReservationExpireEventType  event.EventType = "reservation.expire"
	QuotaUpdateEventType        event.EventType = "quota.update"
)

// ResourceEvent is the payload for all allocator events
type ResourceEvent struct {
	OwnerUserID  string
	ResourceType models.ResourceType
	ResourceID   string
	AuditID      string
	Address      string
}
