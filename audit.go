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
	"time"

	"github.com/blinklabs-io/addrspace/ledger"
)

// QueryAuditHistory returns the user's audit records matching the filter, in
// chain order
func (a *Allocator) QueryAuditHistory(
	ownerUserId string,
	filter ledger.Filter,
) ([]ledger.Record, error) {
	return a.auditLedger.Query(ownerUserId, filter)
}

// VerifyIntegrity recomputes hashes and checks chain linkage over the user's
// audit records in the given time range. The zero time means unbounded
func (a *Allocator) VerifyIntegrity(
	ownerUserId string,
	from, to time.Time,
) (ledger.IntegrityReport, error) {
	return a.auditLedger.Verify(ownerUserId, from, to)
}
