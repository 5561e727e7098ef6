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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type allocatorMetrics struct {
	claims            *prometheus.CounterVec
	claimConflicts    prometheus.Counter
	claimContention   prometheus.Counter
	capacityExhausted *prometheus.CounterVec
	quotaRejections   *prometheus.CounterVec
	releases          *prometheus.CounterVec
	reservationsSwept prometheus.Counter
}

func (m *allocatorMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.claims = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_claims_total",
			Help: "total successful coordinate claims by resource type",
		},
		[]string{"type"},
	)
	m.claimConflicts = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "allocator_claim_conflicts_total",
			Help: "total claim attempts that lost a coordinate race and were retried",
		},
	)
	m.claimContention = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "allocator_claim_contention_total",
			Help: "total claims that exhausted the retry budget",
		},
	)
	m.capacityExhausted = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_capacity_exhausted_total",
			Help: "total claims rejected because the scope was full",
		},
		[]string{"type"},
	)
	m.quotaRejections = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_quota_rejections_total",
			Help: "total claims rejected by the quota guard",
		},
		[]string{"type"},
	)
	m.releases = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_releases_total",
			Help: "total resources released by resource type",
		},
		[]string{"type"},
	)
	m.reservationsSwept = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "allocator_reservations_swept_total",
			Help: "total expired reservations removed by the background sweep",
		},
	)
}
