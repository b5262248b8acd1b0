// Copyright 2026 Blink Labs Software
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

const badgerMetricNamePrefix = "crowdfund_database_blob_"

type blobMetrics struct {
	ops    *prometheus.CounterVec
	bytes  *prometheus.CounterVec
	gcRuns prometheus.Counter
}

// newBlobMetrics creates the blob store collectors and registers them when
// a registerer is given. Collectors already registered by an earlier store
// on the same registry are reused.
func newBlobMetrics(reg prometheus.Registerer) *blobMetrics {
	m := &blobMetrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: badgerMetricNamePrefix + "ops_total",
				Help: "Total number of blob operations",
			},
			[]string{"op"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: badgerMetricNamePrefix + "bytes_total",
				Help: "Total value bytes read and written by blob operations",
			},
			[]string{"op"},
		),
		gcRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: badgerMetricNamePrefix + "gc_runs_total",
				Help: "Total number of value log GC passes that rewrote a file",
			},
		),
	}
	if reg == nil {
		return m
	}
	m.ops = register(reg, m.ops)
	m.bytes = register(reg, m.bytes)
	m.gcRuns = register(reg, m.gcRuns)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *blobMetrics) observe(op string, size int) {
	m.ops.WithLabelValues(op).Inc()
	if size > 0 {
		m.bytes.WithLabelValues(op).Add(float64(size))
	}
}
