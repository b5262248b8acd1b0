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

package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/crowdfund/campaign"
)

// PayoutStore durably records completed payouts
type PayoutStore interface {
	RecordPayout(ctx context.Context, payout Transfer) error
}

// Recorder is a transfer primitive that records every payout in a
// PayoutStore. A payout is only complete once it has been stored.
type Recorder struct {
	store    PayoutStore
	clock    campaign.TimeSource
	logger   *slog.Logger
	rejected map[campaign.Identity]struct{}
	mu       sync.RWMutex
}

type RecorderOptionFunc func(*Recorder)

// WithRecorderLogger specifies the logger object to use for logging messages
func WithRecorderLogger(logger *slog.Logger) RecorderOptionFunc {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithRecorderClock specifies the time source used to stamp payouts
func WithRecorderClock(clock campaign.TimeSource) RecorderOptionFunc {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithRejected marks recipients that refuse payouts
func WithRejected(ids ...campaign.Identity) RecorderOptionFunc {
	return func(r *Recorder) {
		for _, id := range ids {
			r.rejected[id] = struct{}{}
		}
	}
}

func NewRecorder(store PayoutStore, opts ...RecorderOptionFunc) *Recorder {
	r := &Recorder{
		store:    store,
		rejected: make(map[campaign.Identity]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = campaign.SystemClock{}
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r.logger = r.logger.With("component", "transfer")
	return r
}

func (r *Recorder) Transfer(
	ctx context.Context,
	to campaign.Identity,
	amount uint64,
) error {
	r.mu.RLock()
	_, rejected := r.rejected[to]
	r.mu.RUnlock()
	if rejected {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to)
	}
	payout := Transfer{
		Time:   r.clock.Now(),
		To:     to,
		Amount: amount,
	}
	if err := r.store.RecordPayout(ctx, payout); err != nil {
		return fmt.Errorf("record payout: %w", err)
	}
	r.logger.Info("payout recorded", "to", to, "amount", amount)
	return nil
}

// Reject makes every future payout to id fail
func (r *Recorder) Reject(id campaign.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[id] = struct{}{}
}
