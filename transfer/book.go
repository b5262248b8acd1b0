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

// Package transfer provides implementations of the campaign transfer
// primitive.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/blinklabs-io/crowdfund/campaign"
)

var (
	ErrRecipientRejected = errors.New("recipient rejected transfer")
	ErrBalanceOverflow   = errors.New("recipient balance overflow")
)

// Transfer is a completed payout
type Transfer struct {
	Time   time.Time
	To     campaign.Identity
	Amount uint64
}

// Book is an in-memory account book. Recipients can be marked as rejecting
// and failures can be injected, which makes it suitable for tests and for
// running without a database.
type Book struct {
	clock     campaign.TimeSource
	logger    *slog.Logger
	balances  map[campaign.Identity]uint64
	rejected  map[campaign.Identity]struct{}
	failNext  []error
	hook      func(ctx context.Context, to campaign.Identity, amount uint64) error
	transfers []Transfer
	mu        sync.Mutex
}

type BookOptionFunc func(*Book)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BookOptionFunc {
	return func(b *Book) {
		b.logger = logger
	}
}

// WithClock specifies the time source used to stamp transfers
func WithClock(clock campaign.TimeSource) BookOptionFunc {
	return func(b *Book) {
		b.clock = clock
	}
}

func NewBook(opts ...BookOptionFunc) *Book {
	b := &Book{
		balances: make(map[campaign.Identity]uint64),
		rejected: make(map[campaign.Identity]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.clock == nil {
		b.clock = campaign.SystemClock{}
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	b.logger = b.logger.With("component", "transfer")
	return b
}

// Transfer credits amount to the recipient's account
func (b *Book) Transfer(
	ctx context.Context,
	to campaign.Identity,
	amount uint64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	hook := b.hook
	var injected error
	if len(b.failNext) > 0 {
		injected = b.failNext[0]
		b.failNext = b.failNext[1:]
	}
	b.mu.Unlock()
	if injected != nil {
		b.logger.Debug("injected transfer failure", "to", to, "error", injected)
		return injected
	}
	// The hook runs without the book lock so it may call back into a ledger
	// that transfers again
	if hook != nil {
		if err := hook(ctx, to, amount); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rejected[to]; ok {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to)
	}
	if amount > math.MaxUint64-b.balances[to] {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}
	b.balances[to] += amount
	b.transfers = append(b.transfers, Transfer{
		Time:   b.clock.Now(),
		To:     to,
		Amount: amount,
	})
	b.logger.Debug("transfer completed", "to", to, "amount", amount)
	return nil
}

// Balance returns the total received by id
func (b *Book) Balance(id campaign.Identity) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[id]
}

// Transfers returns completed transfers in order
func (b *Book) Transfers() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := make([]Transfer, len(b.transfers))
	copy(ret, b.transfers)
	return ret
}

// Reject makes every future transfer to id fail
func (b *Book) Reject(id campaign.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejected[id] = struct{}{}
}

// Accept undoes Reject
func (b *Book) Accept(id campaign.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rejected, id)
}

// FailNext queues err to be returned by the next transfer
func (b *Book) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = append(b.failNext, err)
}

// SetHook installs fn to run before each transfer is applied. A non-nil
// error from fn fails the transfer.
func (b *Book) SetHook(
	fn func(ctx context.Context, to campaign.Identity, amount uint64) error,
) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = fn
}
