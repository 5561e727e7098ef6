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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	recordsAppended   *prometheus.CounterVec
	integrityFailures prometheus.Counter
}

func (m *ledgerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.recordsAppended = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_records_appended_total",
			Help: "total audit records appended by event type",
		},
		[]string{"type"},
	)
	m.integrityFailures = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_integrity_failures_total",
			Help: "total integrity verification passes that found problems",
		},
	)
}
