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

package badger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const badgerMetricNamePrefix = "database_blob_"

type blobMetrics struct {
	ops      *prometheus.CounterVec
	gets     prometheus.Counter
	sets     prometheus.Counter
	deletes  prometheus.Counter
	lsmSize  prometheus.GaugeFunc
	vlogSize prometheus.GaugeFunc
}

func newBlobMetrics(d *BlobStoreBadger) *blobMetrics {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: badgerMetricNamePrefix + "ops_total",
			Help: "Total number of badger blob operations",
		},
		[]string{"op"},
	)
	return &blobMetrics{
		ops:     ops,
		gets:    ops.WithLabelValues("get"),
		sets:    ops.WithLabelValues("set"),
		deletes: ops.WithLabelValues("delete"),
		lsmSize: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: badgerMetricNamePrefix + "lsm_size_bytes",
				Help: "Size of the badger LSM tree",
			},
			func() float64 {
				if db := d.DB(); db != nil {
					lsm, _ := db.Size()
					return float64(lsm)
				}
				return 0
			},
		),
		vlogSize: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: badgerMetricNamePrefix + "vlog_size_bytes",
				Help: "Size of the badger value log",
			},
			func() float64 {
				if db := d.DB(); db != nil {
					_, vlog := db.Size()
					return float64(vlog)
				}
				return 0
			},
		),
	}
}

func (m *blobMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ops, m.lsmSize, m.vlogSize} {
		if err := reg.Register(c); err != nil {
			are := prometheus.AlreadyRegisteredError{}
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
