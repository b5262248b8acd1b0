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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/bits"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blinklabs-io/crowdfund/event"
)

const (
	// MaxNameLength is the hard upper bound on a campaign name, in characters
	MaxNameLength   = 100
	MinDurationDays = 1
	MaxDurationDays = 90

	secondsPerDay = 86400
)

type LedgerConfig struct {
	Clock       TimeSource
	Transferrer Transferrer
	Persister   Persister
	EventBus    *event.EventBus
	// Dispatcher orders event delivery. Ledgers sharing one deliver in a
	// single commit order. When nil the ledger creates its own for EventBus.
	Dispatcher *event.Dispatcher
	Metrics    *Metrics
	Logger     *slog.Logger
	Owner      Identity
	Name       string
	ID         ID
	Goal       uint64
	// DurationDays is only used by New
	DurationDays uint
	// MaxNameLength tightens the name bound when in (0, MaxNameLength)
	MaxNameLength int
}

// ValidateParams checks campaign creation parameters. It returns a
// *ParameterError for the first violated constraint.
func ValidateParams(
	owner Identity,
	name string,
	goal uint64,
	durationDays uint,
	maxNameLength int,
) error {
	if owner.IsZero() {
		return &ParameterError{Field: "owner", Reason: "invalid owner"}
	}
	if name == "" {
		return &ParameterError{Field: "name", Reason: "name cannot be empty"}
	}
	limit := MaxNameLength
	if maxNameLength > 0 && maxNameLength < limit {
		limit = maxNameLength
	}
	if utf8.RuneCountInString(name) > limit {
		return &ParameterError{
			Field:  "name",
			Reason: fmt.Sprintf("name longer than %d characters", limit),
		}
	}
	if goal == 0 {
		return &ParameterError{Field: "goal", Reason: "goal must be positive"}
	}
	if durationDays < MinDurationDays || durationDays > MaxDurationDays {
		return &ParameterError{
			Field: "duration",
			Reason: fmt.Sprintf(
				"invalid duration %d, must be between %d and %d days",
				durationDays,
				MinDurationDays,
				MaxDurationDays,
			),
		}
	}
	return nil
}

type contributorEntry struct {
	amount   uint64
	position int
}

// Ledger holds one campaign's funds, contributor balances and state. All
// mutable fields are guarded by mu; operations on distinct ledgers never
// share a lock.
type Ledger struct {
	deadline      time.Time
	createdAt     time.Time
	clock         TimeSource
	transferrer   Transferrer
	persister     Persister
	events        *event.Dispatcher
	metrics       *Metrics
	logger        *slog.Logger
	contributions map[Identity]*contributorEntry
	owner         Identity
	name          string
	contributors  []Identity
	id            ID
	goal          uint64
	totalRaised   uint64
	withdrawn     uint64
	mu            sync.RWMutex
	state         State
}

// New creates a campaign in the Preparing state with its deadline set to
// the current time plus DurationDays whole days
func New(cfg LedgerConfig) (*Ledger, error) {
	if err := ValidateParams(
		cfg.Owner,
		cfg.Name,
		cfg.Goal,
		cfg.DurationDays,
		cfg.MaxNameLength,
	); err != nil {
		return nil, err
	}
	l, err := newLedger(cfg)
	if err != nil {
		return nil, err
	}
	l.owner = cfg.Owner
	l.name = cfg.Name
	l.goal = cfg.Goal
	l.createdAt = l.clock.Now()
	l.deadline = l.createdAt.Add(
		time.Duration(cfg.DurationDays) * secondsPerDay * time.Second,
	)
	l.state = StatePreparing
	return l, nil
}

// Restore rebuilds a ledger from a stored record and its contributions,
// which must be ordered by position
func Restore(
	cfg LedgerConfig,
	rec Record,
	contributions []Contribution,
) (*Ledger, error) {
	if err := checkRecord(rec, contributions); err != nil {
		return nil, fmt.Errorf("campaign %s: %w", rec.ID, err)
	}
	cfg.ID = rec.ID
	l, err := newLedger(cfg)
	if err != nil {
		return nil, err
	}
	l.owner = rec.Owner
	l.name = rec.Name
	l.goal = rec.Goal
	l.createdAt = rec.CreatedAt
	l.deadline = rec.Deadline
	l.state = rec.State
	l.totalRaised = rec.TotalRaised
	l.withdrawn = rec.Withdrawn
	for _, c := range contributions {
		l.contributors = append(l.contributors, c.Contributor)
		l.contributions[c.Contributor] = &contributorEntry{
			amount:   c.Amount,
			position: c.Position,
		}
	}
	return l, nil
}

func checkRecord(rec Record, contributions []Contribution) error {
	if rec.Owner.IsZero() || rec.Name == "" || rec.Goal == 0 {
		return fmt.Errorf("%w: missing owner, name or goal", ErrInconsistentRecord)
	}
	if !rec.State.Valid() {
		return fmt.Errorf("%w: state %d", ErrInconsistentRecord, rec.State)
	}
	seen := make(map[Identity]struct{}, len(contributions))
	var sum uint64
	for i, c := range contributions {
		if c.Position != i {
			return fmt.Errorf(
				"%w: contributor %s at position %d, expected %d",
				ErrInconsistentRecord,
				c.Contributor,
				c.Position,
				i,
			)
		}
		if _, ok := seen[c.Contributor]; ok {
			return fmt.Errorf(
				"%w: duplicate contributor %s",
				ErrInconsistentRecord,
				c.Contributor,
			)
		}
		seen[c.Contributor] = struct{}{}
		if c.Amount > math.MaxUint64-sum {
			return fmt.Errorf("%w: contribution overflow", ErrInconsistentRecord)
		}
		sum += c.Amount
	}
	if sum != rec.TotalRaised {
		return fmt.Errorf(
			"%w: total raised %d does not match contributions %d",
			ErrInconsistentRecord,
			rec.TotalRaised,
			sum,
		)
	}
	if rec.Withdrawn != 0 &&
		(rec.State != StateClosed || rec.Withdrawn != rec.TotalRaised) {
		return fmt.Errorf(
			"%w: withdrawn %d in state %s",
			ErrInconsistentRecord,
			rec.Withdrawn,
			rec.State,
		)
	}
	return nil
}

func newLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Transferrer == nil {
		return nil, errors.New("campaign: no transferrer configured")
	}
	l := &Ledger{
		id:            cfg.ID,
		clock:         cfg.Clock,
		transferrer:   cfg.Transferrer,
		persister:     cfg.Persister,
		events:        cfg.Dispatcher,
		metrics:       cfg.Metrics,
		contributions: make(map[Identity]*contributorEntry),
	}
	if l.events == nil {
		l.events = event.NewDispatcher(cfg.EventBus)
	}
	if l.clock == nil {
		l.clock = SystemClock{}
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	l.logger = logger.With("component", "campaign", "campaign", cfg.ID)
	return l, nil
}

// staged holds the candidate values of a mutation before it is persisted
type staged struct {
	contribution   *Contribution
	state          State
	totalRaised    uint64
	withdrawn      uint64
	newContributor bool
}

func (l *Ledger) stageLocked() staged {
	return staged{
		state:       l.state,
		totalRaised: l.totalRaised,
		withdrawn:   l.withdrawn,
	}
}

// commitLocked checks that s follows the campaign state graph, persists it
// and, only if that succeeds, applies it
func (l *Ledger) commitLocked(ctx context.Context, s staged) error {
	if s.state != l.state && !l.state.CanTransition(s.state) {
		return fmt.Errorf(
			"%w: %s to %s",
			ErrIllegalTransition,
			l.state,
			s.state,
		)
	}
	return l.writeLocked(ctx, s)
}

// writeLocked persists and applies s without checking the transition. Only
// rollbacks use it directly.
func (l *Ledger) writeLocked(ctx context.Context, s staged) error {
	if l.persister != nil {
		rec := l.recordLocked()
		rec.State = s.state
		rec.TotalRaised = s.totalRaised
		rec.Withdrawn = s.withdrawn
		change := Change{Record: rec, NewContributor: s.newContributor}
		if s.contribution != nil {
			c := *s.contribution
			change.Contribution = &c
		}
		if err := l.persister.PersistCampaign(ctx, change); err != nil {
			return fmt.Errorf("persist campaign %s: %w", l.id, err)
		}
	}
	l.applyLocked(s)
	return nil
}

func (l *Ledger) applyLocked(s staged) {
	l.state = s.state
	l.totalRaised = s.totalRaised
	l.withdrawn = s.withdrawn
	c := s.contribution
	if c == nil {
		return
	}
	entry, ok := l.contributions[c.Contributor]
	if !ok {
		entry = &contributorEntry{position: c.Position}
		l.contributions[c.Contributor] = entry
		l.contributors = append(l.contributors, c.Contributor)
	}
	entry.amount = c.Amount
}

func (l *Ledger) recordLocked() Record {
	return Record{
		ID:          l.id,
		Owner:       l.owner,
		Name:        l.name,
		Goal:        l.goal,
		Deadline:    l.deadline,
		CreatedAt:   l.createdAt,
		State:       l.state,
		TotalRaised: l.totalRaised,
		Withdrawn:   l.withdrawn,
	}
}

type pendingEvent struct {
	data any
	typ  event.EventType
}

// unlockAndPublish queues evts while mu is still held, which fixes their
// commit order, then releases mu and delivers them. Subscribers run with no
// ledger lock held and may call back into the ledger.
func (l *Ledger) unlockAndPublish(evts []pendingEvent) {
	l.queue(evts)
	l.mu.Unlock()
	l.events.Flush()
}

func (l *Ledger) publish(evts []pendingEvent) {
	l.queue(evts)
	l.events.Flush()
}

func (l *Ledger) queue(evts []pendingEvent) {
	for _, evt := range evts {
		l.events.Push(event.NewEvent(evt.typ, evt.data))
	}
}

func (l *Ledger) transition(from, to State) pendingEvent {
	l.metrics.transitions.WithLabelValues(from.String(), to.String()).Inc()
	l.logger.Info(
		"campaign state changed",
		"old", from.String(),
		"new", to.String(),
	)
	return pendingEvent{
		typ:  StateChangedEventType,
		data: StateChangedEvent{Campaign: l.id, Old: from, New: to},
	}
}

var rejectReasons = []struct {
	err    error
	reason string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidState, "invalid_state"},
	{ErrExpired, "expired"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrNotEnded, "not_ended"},
	{ErrNoContribution, "no_contribution"},
}

func (l *Ledger) reject(op string, caller Identity, err error) error {
	reason := "other"
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			reason = r.reason
			break
		}
	}
	l.metrics.rejectedOps.WithLabelValues(op, reason).Inc()
	l.logger.Debug(
		"operation rejected",
		"op", op,
		"caller", caller,
		"error", err,
	)
	return err
}

// Start opens the campaign for contributions. Only the owner may start a
// campaign, and only once.
func (l *Ledger) Start(ctx context.Context, caller Identity) error {
	l.mu.Lock()
	evts, err := l.startLocked(ctx, caller)
	l.unlockAndPublish(evts)
	return err
}

func (l *Ledger) startLocked(
	ctx context.Context,
	caller Identity,
) ([]pendingEvent, error) {
	const op = "start"
	if caller != l.owner {
		return nil, l.reject(op, caller, ErrUnauthorized)
	}
	if l.state != StatePreparing {
		return nil, l.reject(op, caller, &StateError{Op: op, Have: l.state})
	}
	s := l.stageLocked()
	s.state = StateActive
	if err := l.commitLocked(ctx, s); err != nil {
		return nil, err
	}
	return []pendingEvent{l.transition(StatePreparing, StateActive)}, nil
}

// Contribute credits amount to caller. The contribution that brings the
// total to or past the goal moves the campaign to Success in the same call.
func (l *Ledger) Contribute(
	ctx context.Context,
	caller Identity,
	amount uint64,
) error {
	now := l.clock.Now()
	l.mu.Lock()
	evts, err := l.contributeLocked(ctx, caller, amount, now)
	l.unlockAndPublish(evts)
	return err
}

func (l *Ledger) contributeLocked(
	ctx context.Context,
	caller Identity,
	amount uint64,
	now time.Time,
) ([]pendingEvent, error) {
	const op = "contribute"
	if caller.IsZero() {
		return nil, l.reject(op, caller, ErrUnauthorized)
	}
	if l.state != StateActive {
		return nil, l.reject(op, caller, &StateError{Op: op, Have: l.state})
	}
	if !now.Before(l.deadline) {
		return nil, l.reject(op, caller, ErrExpired)
	}
	if amount == 0 {
		return nil, l.reject(op, caller, ErrInvalidAmount)
	}
	if amount > math.MaxUint64-l.totalRaised {
		return nil, l.reject(
			op,
			caller,
			fmt.Errorf("%w: total would overflow", ErrInvalidAmount),
		)
	}
	s := l.stageLocked()
	c := &Contribution{Contributor: caller, Position: len(l.contributors)}
	if entry, ok := l.contributions[caller]; ok {
		c.Amount = entry.amount
		c.Position = entry.position
	} else {
		s.newContributor = true
	}
	c.Amount += amount
	s.contribution = c
	s.totalRaised += amount
	// Goal check runs last so the transition sees the updated total
	reached := s.totalRaised >= l.goal
	if reached {
		s.state = StateSuccess
	}
	if err := l.commitLocked(ctx, s); err != nil {
		return nil, err
	}
	l.metrics.contributions.Inc()
	l.metrics.raised.Add(float64(amount))
	l.logger.Info(
		"contribution accepted",
		"contributor", caller,
		"amount", amount,
		"total_raised", l.totalRaised,
	)
	evts := []pendingEvent{
		{
			typ: ContributionEventType,
			data: ContributionEvent{
				Campaign:    l.id,
				Contributor: caller,
				Amount:      amount,
			},
		},
	}
	if reached {
		evts = append(evts, l.transition(StateActive, StateSuccess))
	}
	return evts, nil
}

// Finalize resolves an active campaign once its deadline has passed. Any
// caller may finalize.
func (l *Ledger) Finalize(ctx context.Context, caller Identity) error {
	now := l.clock.Now()
	l.mu.Lock()
	evts, err := l.finalizeLocked(ctx, caller, now)
	l.unlockAndPublish(evts)
	return err
}

func (l *Ledger) finalizeLocked(
	ctx context.Context,
	caller Identity,
	now time.Time,
) ([]pendingEvent, error) {
	const op = "finalize"
	if l.state != StateActive {
		return nil, l.reject(op, caller, &StateError{Op: op, Have: l.state})
	}
	if now.Before(l.deadline) {
		return nil, l.reject(op, caller, ErrNotEnded)
	}
	s := l.stageLocked()
	if l.totalRaised >= l.goal {
		s.state = StateSuccess
	} else {
		s.state = StateFailed
	}
	if err := l.commitLocked(ctx, s); err != nil {
		return nil, err
	}
	return []pendingEvent{l.transition(StateActive, s.state)}, nil
}

// Withdraw pays the raised funds to the owner and closes the campaign.
//
// The campaign is marked Closed before the transfer is attempted and the
// ledger lock is not held during the transfer, so a transfer primitive that
// calls back into the ledger sees a closed campaign. If the transfer fails
// the Closed marker is rolled back and a *TransferError is returned.
func (l *Ledger) Withdraw(ctx context.Context, caller Identity) (uint64, error) {
	l.mu.Lock()
	amount, err := l.withdrawLocked(ctx, caller)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := l.transferrer.Transfer(ctx, l.owner, amount); err != nil {
		return 0, l.undoWithdraw(ctx, amount, err)
	}
	l.metrics.withdrawals.Inc()
	l.logger.Info("funds withdrawn", "owner", l.owner, "amount", amount)
	l.publish([]pendingEvent{
		l.transition(StateSuccess, StateClosed),
		{
			typ: WithdrawalEventType,
			data: WithdrawalEvent{
				Campaign: l.id,
				Owner:    l.owner,
				Amount:   amount,
			},
		},
	})
	return amount, nil
}

func (l *Ledger) withdrawLocked(
	ctx context.Context,
	caller Identity,
) (uint64, error) {
	const op = "withdraw"
	if caller != l.owner {
		return 0, l.reject(op, caller, ErrUnauthorized)
	}
	if l.state != StateSuccess {
		return 0, l.reject(op, caller, &StateError{Op: op, Have: l.state})
	}
	amount := l.totalRaised - l.withdrawn
	s := l.stageLocked()
	s.state = StateClosed
	s.withdrawn += amount
	if err := l.commitLocked(ctx, s); err != nil {
		return 0, err
	}
	return amount, nil
}

func (l *Ledger) undoWithdraw(
	ctx context.Context,
	amount uint64,
	cause error,
) error {
	terr := &TransferError{Err: cause, To: l.owner, Amount: amount}
	l.metrics.transferFailures.WithLabelValues("withdraw").Inc()
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stageLocked()
	s.state = StateSuccess
	s.withdrawn -= amount
	return l.rollbackLocked(ctx, s, terr)
}

// rollbackLocked restores the pre-operation values after a failed
// transfer. The in-memory ledger is restored even if persisting the
// rollback fails; the next persisted change carries the full record.
func (l *Ledger) rollbackLocked(ctx context.Context, s staged, terr error) error {
	if err := l.writeLocked(context.WithoutCancel(ctx), s); err != nil {
		l.applyLocked(s)
		l.logger.Error(
			"failed to persist rollback after transfer failure",
			"error", err,
		)
		return errors.Join(terr, err)
	}
	l.logger.Warn("transfer failed, ledger rolled back", "error", terr)
	return terr
}

// Refund returns caller's whole contribution from a failed campaign.
//
// The balance is zeroed before the transfer is attempted, so a repeated or
// re-entrant refund for the same contributor finds nothing to pay. If the
// transfer fails the balance is re-credited and a *TransferError is
// returned.
func (l *Ledger) Refund(ctx context.Context, caller Identity) (uint64, error) {
	l.mu.Lock()
	c, err := l.refundLocked(ctx, caller)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := l.transferrer.Transfer(ctx, caller, c.Amount); err != nil {
		return 0, l.undoRefund(ctx, c, err)
	}
	l.metrics.refunds.Inc()
	l.logger.Info("contribution refunded", "contributor", caller, "amount", c.Amount)
	l.publish([]pendingEvent{
		{
			typ: RefundEventType,
			data: RefundEvent{
				Campaign:    l.id,
				Contributor: caller,
				Amount:      c.Amount,
			},
		},
	})
	return c.Amount, nil
}

// refundLocked zeroes the caller's balance and returns the amount owed
func (l *Ledger) refundLocked(
	ctx context.Context,
	caller Identity,
) (Contribution, error) {
	const op = "refund"
	if l.state != StateFailed {
		return Contribution{}, l.reject(
			op,
			caller,
			&StateError{Op: op, Have: l.state},
		)
	}
	entry, ok := l.contributions[caller]
	if !ok || entry.amount == 0 {
		return Contribution{}, l.reject(op, caller, ErrNoContribution)
	}
	owed := Contribution{
		Contributor: caller,
		Amount:      entry.amount,
		Position:    entry.position,
	}
	s := l.stageLocked()
	s.contribution = &Contribution{Contributor: caller, Position: entry.position}
	s.totalRaised -= owed.Amount
	if err := l.commitLocked(ctx, s); err != nil {
		return Contribution{}, err
	}
	return owed, nil
}

func (l *Ledger) undoRefund(
	ctx context.Context,
	owed Contribution,
	cause error,
) error {
	terr := &TransferError{Err: cause, To: owed.Contributor, Amount: owed.Amount}
	l.metrics.transferFailures.WithLabelValues("refund").Inc()
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stageLocked()
	s.contribution = &owed
	s.totalRaised += owed.Amount
	return l.rollbackLocked(ctx, s, terr)
}

func (l *Ledger) ID() ID {
	return l.id
}

func (l *Ledger) Owner() Identity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owner
}

func (l *Ledger) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.name
}

func (l *Ledger) Goal() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.goal
}

func (l *Ledger) Deadline() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.deadline
}

func (l *Ledger) CreatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.createdAt
}

func (l *Ledger) TotalRaised() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalRaised
}

func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Contribution returns the current balance of contributor, zero if none
func (l *Ledger) Contribution(contributor Identity) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if entry, ok := l.contributions[contributor]; ok {
		return entry.amount
	}
	return 0
}

func (l *Ledger) ContributorCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.contributors)
}

// Contributors returns every identity that ever contributed, in order of
// first contribution. Refunded contributors remain listed.
func (l *Ledger) Contributors() []Identity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]Identity, len(l.contributors))
	copy(ret, l.contributors)
	return ret
}

// Contributions returns the contributor list with current balances
func (l *Ledger) Contributions() []Contribution {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]Contribution, 0, len(l.contributors))
	for _, c := range l.contributors {
		entry := l.contributions[c]
		ret = append(ret, Contribution{
			Contributor: c,
			Amount:      entry.amount,
			Position:    entry.position,
		})
	}
	return ret
}

// Progress returns floor(totalRaised * 100 / goal). It exceeds 100 when
// the campaign is overfunded.
func (l *Ledger) Progress() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return progress(l.totalRaised, l.goal)
}

func progress(total, goal uint64) uint64 {
	hi, lo := bits.Mul64(total, 100)
	if hi >= goal {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, goal)
	return q
}

func (l *Ledger) IsActive() bool {
	return l.State() == StateActive
}

// Balance returns the funds currently held by the campaign
func (l *Ledger) Balance() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalRaised - l.withdrawn
}

// Expired reports whether the deadline has been reached
func (l *Ledger) Expired() bool {
	now := l.clock.Now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !now.Before(l.deadline)
}

// Snapshot is a consistent view of all public campaign fields
type Snapshot struct {
	Record
	ContributorCount int
	Balance          uint64
	Progress         uint64
}

// Snapshot reads every public field under a single lock
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Record:           l.recordLocked(),
		ContributorCount: len(l.contributors),
		Balance:          l.totalRaised - l.withdrawn,
		Progress:         progress(l.totalRaised, l.goal),
	}
}
