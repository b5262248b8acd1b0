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

// Package registry creates campaigns and indexes them by creation order and
// by creator.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/event"
)

var (
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrCampaignNotFound = errors.New("campaign not found")
)

// Entry is a newly created campaign together with its positions in the
// global and per-creator indices
type Entry struct {
	Record       campaign.Record
	GlobalIndex  int
	CreatorIndex int
}

// Stored is a campaign loaded from storage
type Stored struct {
	Entry
	Contributions []campaign.Contribution
}

// Store persists registry indices and ledger changes
type Store interface {
	campaign.Persister
	// CreateCampaign records a new campaign and both index entries atomically
	CreateCampaign(ctx context.Context, entry Entry) error
	// LoadCampaigns returns all stored campaigns ordered by global index
	LoadCampaigns(ctx context.Context) ([]Stored, error)
}

type Config struct {
	Clock        campaign.TimeSource
	Transferrer  campaign.Transferrer
	Store        Store
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	// MaxNameLength tightens the campaign name bound
	MaxNameLength int
}

// Registry is the explicit context object holding every campaign. Ledgers
// live in an id-keyed arena and carry their own locks, so the registry lock
// is only held for index reads and appends. Creates and loads are
// serialized by createMu, which is held across storage round trips.
//
// The registry and its ledgers push events into one dispatcher, so
// subscribers see a single commit order across all campaigns.
type Registry struct {
	config    Config
	logger    *slog.Logger
	metrics   *campaign.Metrics
	count     prometheus.Gauge
	events    *event.Dispatcher
	ids       []campaign.ID
	byCreator map[campaign.Identity][]campaign.ID
	ledgers   map[campaign.ID]*campaign.Ledger
	nextID    campaign.ID
	createMu  sync.Mutex
	mu        sync.RWMutex
}

func New(cfg Config) (*Registry, error) {
	if cfg.Transferrer == nil {
		return nil, errors.New("registry: no transferrer configured")
	}
	if cfg.Clock == nil {
		cfg.Clock = campaign.SystemClock{}
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r := &Registry{
		config:    cfg,
		logger:    cfg.Logger.With("component", "registry"),
		metrics:   campaign.NewMetrics(cfg.PromRegistry),
		events:    event.NewDispatcher(cfg.EventBus),
		byCreator: make(map[campaign.Identity][]campaign.ID),
		ledgers:   make(map[campaign.ID]*campaign.Ledger),
		nextID:    1,
	}
	r.count = promauto.With(cfg.PromRegistry).NewGauge(prometheus.GaugeOpts{
		Name: "crowdfund_registry_campaigns",
		Help: "number of campaigns in the registry",
	})
	return r, nil
}

func (r *Registry) ledgerConfig() campaign.LedgerConfig {
	cfg := campaign.LedgerConfig{
		Clock:         r.config.Clock,
		Transferrer:   r.config.Transferrer,
		EventBus:      r.config.EventBus,
		Dispatcher:    r.events,
		Metrics:       r.metrics,
		Logger:        r.config.Logger,
		MaxNameLength: r.config.MaxNameLength,
	}
	// Avoid a typed nil interface
	if r.config.Store != nil {
		cfg.Persister = r.config.Store
	}
	return cfg
}

// Load replaces the registry contents with the campaigns held by the store
func (r *Registry) Load(ctx context.Context) error {
	if r.config.Store == nil {
		return nil
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	stored, err := r.config.Store.LoadCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("load campaigns: %w", err)
	}
	ledgers := make([]*campaign.Ledger, len(stored))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range stored {
		g.Go(func() error {
			if s.GlobalIndex != i {
				return fmt.Errorf(
					"campaign %s: global index %d, expected %d",
					s.Record.ID,
					s.GlobalIndex,
					i,
				)
			}
			l, err := campaign.Restore(r.ledgerConfig(), s.Record, s.Contributions)
			if err != nil {
				return err
			}
			ledgers[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = r.ids[:0]
	r.byCreator = make(map[campaign.Identity][]campaign.ID)
	r.ledgers = make(map[campaign.ID]*campaign.Ledger, len(ledgers))
	r.nextID = 1
	for i, l := range ledgers {
		s := stored[i]
		creator := s.Record.Owner
		if s.CreatorIndex != len(r.byCreator[creator]) {
			return fmt.Errorf(
				"campaign %s: creator index %d, expected %d",
				s.Record.ID,
				s.CreatorIndex,
				len(r.byCreator[creator]),
			)
		}
		if _, ok := r.ledgers[l.ID()]; ok {
			return fmt.Errorf("duplicate campaign id %s", l.ID())
		}
		r.ids = append(r.ids, l.ID())
		r.byCreator[creator] = append(r.byCreator[creator], l.ID())
		r.ledgers[l.ID()] = l
		if l.ID() >= r.nextID {
			r.nextID = l.ID() + 1
		}
	}
	r.count.Set(float64(len(r.ids)))
	r.logger.Info("loaded campaigns", "count", len(r.ids))
	return nil
}

// Create validates the parameters, creates a ledger in the Preparing state
// and appends it to the global and creator indices. Nothing is registered
// when validation or persistence fails.
func (r *Registry) Create(
	ctx context.Context,
	creator campaign.Identity,
	name string,
	goal uint64,
	durationDays uint,
) (campaign.ID, error) {
	if err := campaign.ValidateParams(
		creator,
		name,
		goal,
		durationDays,
		r.config.MaxNameLength,
	); err != nil {
		return 0, err
	}
	r.createMu.Lock()
	r.mu.RLock()
	cfg := r.ledgerConfig()
	cfg.ID = r.nextID
	entry := Entry{
		GlobalIndex:  len(r.ids),
		CreatorIndex: len(r.byCreator[creator]),
	}
	r.mu.RUnlock()
	cfg.Owner = creator
	cfg.Name = name
	cfg.Goal = goal
	cfg.DurationDays = durationDays
	l, err := campaign.New(cfg)
	if err != nil {
		r.createMu.Unlock()
		return 0, err
	}
	entry.Record = l.Snapshot().Record
	if r.config.Store != nil {
		if err := r.config.Store.CreateCampaign(ctx, entry); err != nil {
			r.createMu.Unlock()
			return 0, fmt.Errorf("create campaign: %w", err)
		}
	}
	id := l.ID()
	// Queued before the ledger is reachable, so it precedes every event
	// of the new campaign
	r.events.Push(event.NewEvent(
		CampaignCreatedEventType,
		CampaignCreatedEvent{
			Creator:  creator,
			Campaign: id,
			Name:     name,
			Goal:     goal,
			Deadline: entry.Record.Deadline,
		},
	))
	r.mu.Lock()
	r.nextID++
	r.ids = append(r.ids, id)
	r.byCreator[creator] = append(r.byCreator[creator], id)
	r.ledgers[id] = l
	r.count.Set(float64(len(r.ids)))
	r.mu.Unlock()
	r.createMu.Unlock()

	r.logger.Info(
		"campaign created",
		"campaign", id,
		"creator", creator,
		"goal", goal,
		"deadline", entry.Record.Deadline,
	)
	r.events.Flush()
	return id, nil
}

// Campaigns returns every campaign id in creation order
func (r *Registry) Campaigns() []campaign.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]campaign.ID, len(r.ids))
	copy(ret, r.ids)
	return ret
}

// UserCampaigns returns the ids created by creator in creation order
func (r *Registry) UserCampaigns(creator campaign.Identity) []campaign.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byCreator[creator]
	ret := make([]campaign.ID, len(ids))
	copy(ret, ids)
	return ret
}

func (r *Registry) CampaignCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// CampaignAt returns the id at index in the global sequence
func (r *Registry) CampaignAt(index int) (campaign.ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.ids) {
		return 0, fmt.Errorf(
			"%w: index %d, count %d",
			ErrIndexOutOfRange,
			index,
			len(r.ids),
		)
	}
	return r.ids[index], nil
}

// Campaign returns the ledger for id
func (r *Registry) Campaign(id campaign.ID) (*campaign.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return l, nil
}

// CampaignCreatedEventType is published after a campaign is registered
const CampaignCreatedEventType event.EventType = "registry.campaign_created"

type CampaignCreatedEvent struct {
	Deadline time.Time
	Creator  campaign.Identity
	Name     string
	Campaign campaign.ID
	Goal     uint64
}

func (e CampaignCreatedEvent) CampaignID() campaign.ID { return e.Campaign }
