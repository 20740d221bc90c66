// Copyright 2025 Blink Labs Software
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

type engineMetrics struct {
	applied      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	applyLatency prometheus.Histogram
	lockedShares *prometheus.GaugeVec
	centralTotal *prometheus.GaugeVec
	daos         prometheus.Gauge
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.applied = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capiledger_operations_applied_total",
			Help: "total number of applied operation groups",
		},
		[]string{"kind"},
	)
	m.rejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capiledger_operations_rejected_total",
			Help: "total number of rejected operation groups",
		},
		[]string{"kind", "reason"},
	)
	m.applyLatency = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "capiledger_operation_apply_seconds",
			Help:    "latency of validating, applying and persisting one operation group",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100us to ~1.6s
		},
	)
	m.lockedShares = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capiledger_dao_locked_shares",
			Help: "shares currently locked in the DAO",
		},
		[]string{"dao"},
	)
	m.centralTotal = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capiledger_dao_central_received_total",
			Help: "cumulative funds drained into the DAO central pool",
		},
		[]string{"dao"},
	)
	m.daos = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "capiledger_daos",
			Help: "number of DAOs known to the engine",
		},
	)
}
