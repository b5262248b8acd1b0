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

package campaign

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors shared by every ledger of a registry. Create
// it once per prometheus registerer; registering twice panics.
type Metrics struct {
	contributions    prometheus.Counter
	raised           prometheus.Counter
	refunds          prometheus.Counter
	withdrawals      prometheus.Counter
	transitions      *prometheus.CounterVec
	transferFailures *prometheus.CounterVec
	rejectedOps      *prometheus.CounterVec
}

// NewMetrics creates campaign metrics. A nil registerer yields working but
// unregistered collectors.
func NewMetrics(promRegistry prometheus.Registerer) *Metrics {
	promautoFactory := promauto.With(promRegistry)
	return &Metrics{
		contributions: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_campaign_contributions_total",
			Help: "total accepted contributions",
		}),
		raised: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_campaign_raised_total",
			Help: "total amount contributed across all campaigns",
		}),
		refunds: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_campaign_refunds_total",
			Help: "total completed refunds",
		}),
		withdrawals: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_campaign_withdrawals_total",
			Help: "total completed owner withdrawals",
		}),
		transitions: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crowdfund_campaign_transitions_total",
				Help: "campaign state transitions",
			},
			[]string{"from", "to"},
		),
		transferFailures: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crowdfund_campaign_transfer_failures_total",
				Help: "transfers rejected by the transfer primitive",
			},
			[]string{"op"},
		),
		rejectedOps: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crowdfund_campaign_rejections_total",
				Help: "operations rejected by a guard",
			},
			[]string{"op", "reason"},
		),
	}
}
