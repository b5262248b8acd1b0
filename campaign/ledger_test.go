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

package campaign_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/event"
)

const (
	owner = campaign.Identity("owner")
	alice = campaign.Identity("alice")
	bob   = campaign.Identity("bob")
	day   = 24 * time.Hour
)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type transferCall struct {
	to     campaign.Identity
	amount uint64
}

type fakeTransferrer struct {
	hook  func(to campaign.Identity, amount uint64) error
	calls []transferCall
	mu    sync.Mutex
}

func (f *fakeTransferrer) Transfer(
	_ context.Context,
	to campaign.Identity,
	amount uint64,
) error {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(to, amount); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transferCall{to: to, amount: amount})
	return nil
}

func (f *fakeTransferrer) Calls() []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transferCall(nil), f.calls...)
}

type fakePersister struct {
	err     error
	changes []campaign.Change
	mu      sync.Mutex
}

func (p *fakePersister) PersistCampaign(
	_ context.Context,
	change campaign.Change,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, change)
	return nil
}

func (p *fakePersister) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type fixture struct {
	ledger      *campaign.Ledger
	clock       *campaign.ManualClock
	transferrer *fakeTransferrer
	persister   *fakePersister
}

func newFixture(t *testing.T, goal uint64, days uint) *fixture {
	t.Helper()
	f := &fixture{
		clock:       campaign.NewManualClock(testStart),
		transferrer: &fakeTransferrer{},
		persister:   &fakePersister{},
	}
	l, err := campaign.New(campaign.LedgerConfig{
		ID:           1,
		Owner:        owner,
		Name:         "test campaign",
		Goal:         goal,
		DurationDays: days,
		Clock:        f.clock,
		Transferrer:  f.transferrer,
		Persister:    f.persister,
	})
	require.NoError(t, err)
	f.ledger = l
	return f
}

func (f *fixture) active(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, f.ledger.Start(context.Background(), owner))
	return f
}

func assertTotals(t *testing.T, l *campaign.Ledger) {
	t.Helper()
	var sum uint64
	seen := make(map[campaign.Identity]bool)
	for _, c := range l.Contributors() {
		require.False(t, seen[c], "duplicate contributor %s", c)
		seen[c] = true
		sum += l.Contribution(c)
	}
	assert.Equal(t, l.TotalRaised(), sum)
}

func TestValidateParams(t *testing.T) {
	testDefs := []struct {
		name      string
		owner     campaign.Identity
		campaign  string
		goal      uint64
		days      uint
		maxName   int
		wantField string
	}{
		{name: "valid", owner: owner, campaign: "x", goal: 1, days: 1},
		{name: "max duration", owner: owner, campaign: "x", goal: 1, days: 90},
		{name: "no owner", owner: " ", campaign: "x", goal: 1, days: 1, wantField: "owner"},
		{name: "empty name", owner: owner, goal: 1, days: 1, wantField: "name"},
		{
			name:      "long name",
			owner:     owner,
			campaign:  string(make([]rune, 101)),
			goal:      1,
			days:      1,
			wantField: "name",
		},
		{
			name:     "name at bound in runes",
			owner:    owner,
			campaign: strings.Repeat("é", 100),
			goal:     1,
			days:     1,
		},
		{name: "configured name bound", owner: owner, campaign: "abcdef", goal: 1, days: 1, maxName: 5, wantField: "name"},
		{name: "zero goal", owner: owner, campaign: "x", days: 1, wantField: "goal"},
		{name: "zero duration", owner: owner, campaign: "x", goal: 1, wantField: "duration"},
		{name: "91 days", owner: owner, campaign: "x", goal: 1, days: 91, wantField: "duration"},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			err := campaign.ValidateParams(
				testDef.owner,
				testDef.campaign,
				testDef.goal,
				testDef.days,
				testDef.maxName,
			)
			if testDef.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, campaign.ErrInvalidParameter)
			var paramErr *campaign.ParameterError
			require.ErrorAs(t, err, &paramErr)
			assert.Equal(t, testDef.wantField, paramErr.Field)
		})
	}
}

func TestNewCampaign(t *testing.T) {
	f := newFixture(t, 10, 7)
	l := f.ledger
	assert.Equal(t, campaign.ID(1), l.ID())
	assert.Equal(t, owner, l.Owner())
	assert.Equal(t, "test campaign", l.Name())
	assert.Equal(t, uint64(10), l.Goal())
	assert.Equal(t, campaign.StatePreparing, l.State())
	assert.Equal(t, testStart, l.CreatedAt())
	assert.Equal(t, testStart.Add(7*86400*time.Second), l.Deadline())
	assert.False(t, l.IsActive())
	assert.Zero(t, l.TotalRaised())
	assert.Zero(t, l.ContributorCount())
	assert.Empty(t, l.Contributors())
	assert.Zero(t, l.Progress())
}

func TestNewCampaignRequiresTransferrer(t *testing.T) {
	_, err := campaign.New(campaign.LedgerConfig{
		Owner:        owner,
		Name:         "x",
		Goal:         1,
		DurationDays: 1,
	})
	require.Error(t, err)
}

func TestSuccessOnGoal(t *testing.T) {
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(context.Background(), alice, 10))
	assert.Equal(t, campaign.StateSuccess, f.ledger.State())
	assert.Equal(t, uint64(10), f.ledger.TotalRaised())
	assert.Equal(t, uint64(100), f.ledger.Progress())
}

func TestRefundAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 1).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 5))
	f.clock.Advance(day + time.Second)
	require.NoError(t, f.ledger.Finalize(ctx, bob))
	require.Equal(t, campaign.StateFailed, f.ledger.State())

	amount, err := f.ledger.Refund(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), amount)
	assert.Equal(t, []transferCall{{to: alice, amount: 5}}, f.transferrer.Calls())
	assert.Zero(t, f.ledger.Contribution(alice))
	assert.Zero(t, f.ledger.TotalRaised())
	assert.Equal(t, []campaign.Identity{alice}, f.ledger.Contributors())
	assertTotals(t, f.ledger)

	_, err = f.ledger.Refund(ctx, alice)
	require.ErrorIs(t, err, campaign.ErrNoContribution)
	assert.Len(t, f.transferrer.Calls(), 1)

	_, err = f.ledger.Refund(ctx, bob)
	require.ErrorIs(t, err, campaign.ErrNoContribution)
	assert.Equal(t, campaign.StateFailed, f.ledger.State())
}

func TestStartGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7)
	require.ErrorIs(t, f.ledger.Start(ctx, alice), campaign.ErrUnauthorized)
	require.ErrorIs(t, f.ledger.Start(ctx, ""), campaign.ErrUnauthorized)
	assert.Equal(t, campaign.StatePreparing, f.ledger.State())

	require.NoError(t, f.ledger.Start(ctx, owner))
	assert.True(t, f.ledger.IsActive())
	err := f.ledger.Start(ctx, owner)
	require.ErrorIs(t, err, campaign.ErrInvalidState)
	var stateErr *campaign.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, campaign.StateActive, stateErr.Have)
	// Owner check comes first
	require.ErrorIs(t, f.ledger.Start(ctx, alice), campaign.ErrUnauthorized)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 4))
	_, err := f.ledger.Withdraw(ctx, owner)
	require.ErrorIs(t, err, campaign.ErrInvalidState)

	require.NoError(t, f.ledger.Contribute(ctx, bob, 8))
	require.Equal(t, campaign.StateSuccess, f.ledger.State())

	_, err = f.ledger.Withdraw(ctx, alice)
	require.ErrorIs(t, err, campaign.ErrUnauthorized)

	amount, err := f.ledger.Withdraw(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), amount)
	assert.Equal(t, campaign.StateClosed, f.ledger.State())
	assert.Zero(t, f.ledger.Balance())
	assert.Equal(t, uint64(12), f.ledger.TotalRaised())

	_, err = f.ledger.Withdraw(ctx, owner)
	require.ErrorIs(t, err, campaign.ErrInvalidState)
	assert.Equal(t, []transferCall{{to: owner, amount: 12}}, f.transferrer.Calls())
}

func TestContributeAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 5))
	require.NoError(t, f.ledger.Contribute(ctx, bob, 3))
	require.NoError(t, f.ledger.Contribute(ctx, alice, 5))
	assert.Equal(t, uint64(10), f.ledger.Contribution(alice))
	assert.Equal(t, uint64(3), f.ledger.Contribution(bob))
	assert.Equal(t, uint64(13), f.ledger.TotalRaised())
	assert.Equal(t, 2, f.ledger.ContributorCount())
	assert.Equal(t, []campaign.Identity{alice, bob}, f.ledger.Contributors())
	assert.Equal(t, uint64(13), f.ledger.Progress())
	assertTotals(t, f.ledger)
}

func TestContributeBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 9))
	assert.Equal(t, campaign.StateActive, f.ledger.State())
	require.NoError(t, f.ledger.Contribute(ctx, bob, 1))
	assert.Equal(t, campaign.StateSuccess, f.ledger.State())
	err := f.ledger.Contribute(ctx, bob, 1)
	require.ErrorIs(t, err, campaign.ErrInvalidState)
}

func TestContributeOvershoot(t *testing.T) {
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(context.Background(), alice, 15))
	assert.Equal(t, uint64(15), f.ledger.TotalRaised())
	assert.Equal(t, uint64(150), f.ledger.Progress())
	assert.Equal(t, campaign.StateSuccess, f.ledger.State())
}

func TestContributeGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, math.MaxUint64, 7)
	require.ErrorIs(t, f.ledger.Contribute(ctx, alice, 5), campaign.ErrInvalidState)
	f.active(t)
	require.ErrorIs(t, f.ledger.Contribute(ctx, alice, 0), campaign.ErrInvalidAmount)
	require.ErrorIs(t, f.ledger.Contribute(ctx, "", 1), campaign.ErrUnauthorized)
	require.NoError(t, f.ledger.Contribute(ctx, alice, math.MaxUint64-1))
	require.ErrorIs(t, f.ledger.Contribute(ctx, bob, 2), campaign.ErrInvalidAmount)
	assert.Equal(t, 1, f.ledger.ContributorCount())

	// Deadline is exclusive for contributions
	f.clock.Set(f.ledger.Deadline())
	require.ErrorIs(t, f.ledger.Contribute(ctx, bob, 1), campaign.ErrExpired)
	// Expiry is reported before the amount check
	require.ErrorIs(t, f.ledger.Contribute(ctx, bob, 0), campaign.ErrExpired)
	assert.True(t, f.ledger.Expired())
	assertTotals(t, f.ledger)
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 2)
	require.ErrorIs(t, f.ledger.Finalize(ctx, alice), campaign.ErrInvalidState)
	f.active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 3))
	require.ErrorIs(t, f.ledger.Finalize(ctx, alice), campaign.ErrNotEnded)
	f.clock.Set(f.ledger.Deadline())
	require.NoError(t, f.ledger.Finalize(ctx, alice))
	assert.Equal(t, campaign.StateFailed, f.ledger.State())
	require.ErrorIs(t, f.ledger.Finalize(ctx, alice), campaign.ErrInvalidState)
	_, err := f.ledger.Withdraw(ctx, owner)
	require.ErrorIs(t, err, campaign.ErrInvalidState)
}

func TestRefundRequiresFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 2).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 3))
	_, err := f.ledger.Refund(ctx, alice)
	require.ErrorIs(t, err, campaign.ErrInvalidState)
	assert.Equal(t, uint64(3), f.ledger.Contribution(alice))
}

func TestWithdrawTransferFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 10))
	cause := errors.New("recipient rejected")
	f.transferrer.hook = func(campaign.Identity, uint64) error { return cause }

	_, err := f.ledger.Withdraw(ctx, owner)
	require.ErrorIs(t, err, campaign.ErrTransferFailed)
	require.ErrorIs(t, err, cause)
	var transferErr *campaign.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, owner, transferErr.To)
	assert.Equal(t, uint64(10), transferErr.Amount)
	assert.Equal(t, campaign.StateSuccess, f.ledger.State())
	assert.Equal(t, uint64(10), f.ledger.Balance())
	assert.Empty(t, f.transferrer.Calls())

	f.transferrer.hook = nil
	amount, err := f.ledger.Withdraw(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
	assert.Equal(t, campaign.StateClosed, f.ledger.State())
}

func TestRefundTransferFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 1).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 4))
	require.NoError(t, f.ledger.Contribute(ctx, bob, 2))
	f.clock.Advance(2 * day)
	require.NoError(t, f.ledger.Finalize(ctx, owner))
	f.transferrer.hook = func(campaign.Identity, uint64) error {
		return errors.New("boom")
	}
	_, err := f.ledger.Refund(ctx, alice)
	require.ErrorIs(t, err, campaign.ErrTransferFailed)
	assert.Equal(t, uint64(4), f.ledger.Contribution(alice))
	assert.Equal(t, uint64(6), f.ledger.TotalRaised())
	assert.Equal(t, []campaign.Identity{alice, bob}, f.ledger.Contributors())
	assertTotals(t, f.ledger)

	f.transferrer.hook = nil
	amount, err := f.ledger.Refund(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), amount)
	assertTotals(t, f.ledger)
}

func TestRollbackPersistFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 10))
	dbErr := errors.New("disk full")
	f.transferrer.hook = func(campaign.Identity, uint64) error {
		f.persister.setErr(dbErr)
		return errors.New("rejected")
	}
	_, err := f.ledger.Withdraw(ctx, owner)
	require.ErrorIs(t, err, campaign.ErrTransferFailed)
	require.ErrorIs(t, err, dbErr)
	assert.Equal(t, campaign.StateSuccess, f.ledger.State())
	assert.Equal(t, uint64(10), f.ledger.Balance())
}

func TestRefundReentrancy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 1).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 5))
	f.clock.Advance(2 * day)
	require.NoError(t, f.ledger.Finalize(ctx, owner))

	var nested error
	f.transferrer.hook = func(to campaign.Identity, _ uint64) error {
		f.transferrer.hook = nil
		_, nested = f.ledger.Refund(ctx, to)
		return nil
	}
	amount, err := f.ledger.Refund(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), amount)
	require.ErrorIs(t, nested, campaign.ErrNoContribution)
	assert.Len(t, f.transferrer.Calls(), 1)
}

func TestWithdrawReentrancy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 10))
	var nested error
	var stateDuringTransfer campaign.State
	f.transferrer.hook = func(campaign.Identity, uint64) error {
		f.transferrer.hook = nil
		stateDuringTransfer = f.ledger.State()
		_, nested = f.ledger.Withdraw(ctx, owner)
		return nil
	}
	_, err := f.ledger.Withdraw(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, campaign.StateClosed, stateDuringTransfer)
	require.ErrorIs(t, nested, campaign.ErrInvalidState)
	assert.Len(t, f.transferrer.Calls(), 1)
}

func TestPersistFailureRejectsOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 3))
	dbErr := errors.New("database unavailable")
	f.persister.setErr(dbErr)
	require.ErrorIs(t, f.ledger.Contribute(ctx, bob, 7), dbErr)
	assert.Equal(t, uint64(3), f.ledger.TotalRaised())
	assert.Equal(t, []campaign.Identity{alice}, f.ledger.Contributors())
	assert.Equal(t, campaign.StateActive, f.ledger.State())

	f.persister.setErr(nil)
	require.NoError(t, f.ledger.Contribute(ctx, bob, 7))
	assert.Equal(t, campaign.StateSuccess, f.ledger.State())
}

func TestPersistedChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 3))
	require.NoError(t, f.ledger.Contribute(ctx, alice, 7))
	changes := f.persister.changes
	require.Len(t, changes, 3)
	assert.Equal(t, campaign.StateActive, changes[0].Record.State)
	assert.Nil(t, changes[0].Contribution)
	assert.True(t, changes[1].NewContributor)
	assert.Equal(t, uint64(3), changes[1].Contribution.Amount)
	assert.False(t, changes[2].NewContributor)
	assert.Equal(t, uint64(10), changes[2].Contribution.Amount)
	assert.Equal(t, campaign.StateSuccess, changes[2].Record.State)
	assert.Equal(t, uint64(10), changes[2].Record.TotalRaised)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	var (
		mu     sync.Mutex
		events []event.Event
	)
	record := func(evt event.Event) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	}
	sub := &recordingSubscriber{fn: record}
	for _, evtType := range campaign.EventTypes {
		bus.RegisterSubscriber(evtType, sub)
	}
	l, err := campaign.New(campaign.LedgerConfig{
		ID:           7,
		Owner:        owner,
		Name:         "events",
		Goal:         10,
		DurationDays: 3,
		Clock:        campaign.NewManualClock(testStart),
		Transferrer:  &fakeTransferrer{},
		EventBus:     bus,
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx, owner))
	require.NoError(t, l.Contribute(ctx, alice, 12))
	_, err = l.Withdraw(ctx, owner)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 5)
	assert.Equal(t, campaign.StateChangedEvent{
		Campaign: 7,
		Old:      campaign.StatePreparing,
		New:      campaign.StateActive,
	}, events[0].Data)
	assert.Equal(t, campaign.ContributionEvent{
		Campaign:    7,
		Contributor: alice,
		Amount:      12,
	}, events[1].Data)
	assert.Equal(t, campaign.StateChangedEvent{
		Campaign: 7,
		Old:      campaign.StateActive,
		New:      campaign.StateSuccess,
	}, events[2].Data)
	assert.Equal(t, campaign.StateChangedEvent{
		Campaign: 7,
		Old:      campaign.StateSuccess,
		New:      campaign.StateClosed,
	}, events[3].Data)
	assert.Equal(t, campaign.WithdrawalEvent{
		Campaign: 7,
		Owner:    owner,
		Amount:   12,
	}, events[4].Data)
}

func TestSubscriberReadsLedgerDuringDelivery(t *testing.T) {
	ctx := context.Background()
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	var l *campaign.Ledger
	delivering := make(chan struct{})
	otherDone := make(chan struct{})
	var once sync.Once
	var seen []campaign.State
	bus.RegisterSubscriber(campaign.ContributionEventType, &recordingSubscriber{
		fn: func(event.Event) {
			once.Do(func() {
				close(delivering)
				select {
				case <-otherDone:
				case <-time.After(5 * time.Second):
				}
			})
			seen = append(seen, l.State())
			_ = l.Snapshot()
		},
	})
	var err error
	l, err = campaign.New(campaign.LedgerConfig{
		ID:           8,
		Owner:        owner,
		Name:         "readers",
		Goal:         100,
		DurationDays: 3,
		Clock:        campaign.NewManualClock(testStart),
		Transferrer:  &fakeTransferrer{},
		EventBus:     bus,
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx, owner))

	firstDone := make(chan error, 1)
	go func() { firstDone <- l.Contribute(ctx, alice, 1) }()
	<-delivering
	// A second contribution commits while the first one's subscriber runs
	go func() {
		assert.NoError(t, l.Contribute(ctx, bob, 2))
		close(otherDone)
	}()
	select {
	case err := <-firstDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("contribution blocked by a subscriber reading the ledger")
	}
	<-otherDone
	assert.Equal(t, uint64(3), l.TotalRaised())
	assert.Equal(t, []campaign.State{campaign.StateActive, campaign.StateActive}, seen)
}

func TestSubscriberWithdrawsOnSuccess(t *testing.T) {
	ctx := context.Background()
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	transferrer := &fakeTransferrer{}
	var (
		l           *campaign.Ledger
		events      []event.Event
		withdrawErr error
	)
	sub := &recordingSubscriber{fn: func(evt event.Event) {
		events = append(events, evt)
		if sc, ok := evt.Data.(campaign.StateChangedEvent); ok &&
			sc.New == campaign.StateSuccess {
			_, withdrawErr = l.Withdraw(ctx, owner)
		}
	}}
	for _, evtType := range campaign.EventTypes {
		bus.RegisterSubscriber(evtType, sub)
	}
	var err error
	l, err = campaign.New(campaign.LedgerConfig{
		ID:           9,
		Owner:        owner,
		Name:         "auto withdraw",
		Goal:         10,
		DurationDays: 3,
		Clock:        campaign.NewManualClock(testStart),
		Transferrer:  transferrer,
		EventBus:     bus,
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx, owner))

	done := make(chan error, 1)
	go func() { done <- l.Contribute(ctx, alice, 10) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("withdraw from a subscriber blocked the contribution")
	}
	require.NoError(t, withdrawErr)
	assert.Equal(t, campaign.StateClosed, l.State())
	assert.Equal(t, []transferCall{{to: owner, amount: 10}}, transferrer.Calls())
	types := make([]event.EventType, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	// Events of the nested withdraw follow those of the contribution
	assert.Equal(t, []event.EventType{
		campaign.StateChangedEventType,
		campaign.ContributionEventType,
		campaign.StateChangedEventType,
		campaign.StateChangedEventType,
		campaign.WithdrawalEventType,
	}, types)
}

type recordingSubscriber struct {
	fn func(event.Event)
}

func (r *recordingSubscriber) Deliver(evt event.Event) error {
	r.fn(evt)
	return nil
}

func (r *recordingSubscriber) Close() {}

func TestConcurrentContributions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000, 7).active(t)
	contributors := []campaign.Identity{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, c := range contributors {
		for range 25 {
			wg.Add(1)
			go func(c campaign.Identity) {
				defer wg.Done()
				assert.NoError(t, f.ledger.Contribute(ctx, c, 2))
				_ = f.ledger.Snapshot()
			}(c)
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(len(contributors)*25*2), f.ledger.TotalRaised())
	assert.Len(t, f.ledger.Contributors(), len(contributors))
	for _, c := range contributors {
		assert.Equal(t, uint64(50), f.ledger.Contribution(c))
	}
	assertTotals(t, f.ledger)
}

func TestProgressLargeValues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, math.MaxUint64, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, math.MaxUint64/2))
	assert.Equal(t, uint64(49), f.ledger.Progress())

	g := newFixture(t, 1, 7).active(t)
	require.NoError(t, g.ledger.Contribute(ctx, alice, math.MaxUint64))
	assert.Equal(t, uint64(math.MaxUint64), g.ledger.Progress())
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 8, 7).active(t)
	require.NoError(t, f.ledger.Contribute(ctx, alice, 2))
	snap := f.ledger.Snapshot()
	assert.Equal(t, campaign.ID(1), snap.ID)
	assert.Equal(t, owner, snap.Owner)
	assert.Equal(t, campaign.StateActive, snap.State)
	assert.Equal(t, uint64(2), snap.TotalRaised)
	assert.Equal(t, uint64(2), snap.Balance)
	assert.Equal(t, uint64(25), snap.Progress)
	assert.Equal(t, 1, snap.ContributorCount)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	rec := campaign.Record{
		ID:          3,
		Owner:       owner,
		Name:        "restored",
		Goal:        10,
		Deadline:    testStart.Add(day),
		CreatedAt:   testStart,
		State:       campaign.StateFailed,
		TotalRaised: 7,
	}
	contributions := []campaign.Contribution{
		{Contributor: alice, Amount: 7, Position: 0},
		{Contributor: bob, Amount: 0, Position: 1},
	}
	transferrer := &fakeTransferrer{}
	l, err := campaign.Restore(
		campaign.LedgerConfig{Transferrer: transferrer},
		rec,
		contributions,
	)
	require.NoError(t, err)
	assert.Equal(t, campaign.ID(3), l.ID())
	assert.Equal(t, []campaign.Identity{alice, bob}, l.Contributors())
	_, err = l.Refund(ctx, bob)
	require.ErrorIs(t, err, campaign.ErrNoContribution)
	amount, err := l.Refund(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), amount)
}

func TestRestoreInconsistent(t *testing.T) {
	base := campaign.Record{
		ID:          3,
		Owner:       owner,
		Name:        "restored",
		Goal:        10,
		State:       campaign.StateActive,
		TotalRaised: 5,
	}
	testDefs := []struct {
		name          string
		mutate        func(*campaign.Record)
		contributions []campaign.Contribution
	}{
		{
			name:          "sum mismatch",
			contributions: []campaign.Contribution{{Contributor: alice, Amount: 4}},
		},
		{
			name: "bad position",
			contributions: []campaign.Contribution{
				{Contributor: alice, Amount: 5, Position: 1},
			},
		},
		{
			name: "duplicate",
			contributions: []campaign.Contribution{
				{Contributor: alice, Amount: 2},
				{Contributor: alice, Amount: 3, Position: 1},
			},
		},
		{
			name:          "bad state",
			mutate:        func(r *campaign.Record) { r.State = 9 },
			contributions: []campaign.Contribution{{Contributor: alice, Amount: 5}},
		},
		{
			name:          "withdrawn while active",
			mutate:        func(r *campaign.Record) { r.Withdrawn = 5 },
			contributions: []campaign.Contribution{{Contributor: alice, Amount: 5}},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			rec := base
			if testDef.mutate != nil {
				testDef.mutate(&rec)
			}
			_, err := campaign.Restore(
				campaign.LedgerConfig{Transferrer: &fakeTransferrer{}},
				rec,
				testDef.contributions,
			)
			require.ErrorIs(t, err, campaign.ErrInconsistentRecord)
		})
	}
}

func TestLedgerMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	l, err := campaign.New(campaign.LedgerConfig{
		ID:           1,
		Owner:        owner,
		Name:         "metrics",
		Goal:         10,
		DurationDays: 1,
		Clock:        campaign.NewManualClock(testStart),
		Transferrer:  &fakeTransferrer{},
		Metrics:      campaign.NewMetrics(reg),
	})
	require.NoError(t, err)
	require.ErrorIs(t, l.Start(ctx, alice), campaign.ErrUnauthorized)
	require.NoError(t, l.Start(ctx, owner))
	require.NoError(t, l.Contribute(ctx, alice, 4))
	count, err := testutil.GatherAndCount(
		reg,
		"crowdfund_campaign_contributions_total",
		"crowdfund_campaign_transitions_total",
		"crowdfund_campaign_rejections_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
