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

package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/database/types"
	"github.com/blinklabs-io/crowdfund/event"
	"github.com/blinklabs-io/crowdfund/registry"
)

// JournalEntry is a stored event
type JournalEntry struct {
	Time time.Time
	// Data holds the concrete event struct for known event types and the
	// raw CBOR otherwise
	Data     any
	Type     event.EventType
	Campaign campaign.ID
	Seq      uint64
}

type journalRecord struct {
	_        struct{} `cbor:",toarray"`
	Type     string
	Time     time.Time
	Campaign uint64
	Data     cbor.RawMessage
}

type campaignEvent interface {
	CampaignID() campaign.ID
}

// JournalEventTypes lists the event types recorded by the journal
var JournalEventTypes = append(
	[]event.EventType{registry.CampaignCreatedEventType},
	campaign.EventTypes...,
)

var journalDecoders = map[event.EventType]func([]byte) (any, error){
	registry.CampaignCreatedEventType: decodeEvent[registry.CampaignCreatedEvent],
	campaign.StateChangedEventType:    decodeEvent[campaign.StateChangedEvent],
	campaign.ContributionEventType:    decodeEvent[campaign.ContributionEvent],
	campaign.WithdrawalEventType:      decodeEvent[campaign.WithdrawalEvent],
	campaign.RefundEventType:          decodeEvent[campaign.RefundEvent],
}

func decodeEvent[T any](data []byte) (any, error) {
	var ret T
	if err := cbor.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

var journalEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

const (
	journalWriteAttempts = 3
	journalRetryDelay    = 10 * time.Millisecond
)

// ErrJournalDetached is recorded when the bus drops the journal before Stop
var ErrJournalDetached = errors.New("journal detached from event bus")

// Journal is an event bus subscriber that appends campaign events to the
// blob store
type Journal struct {
	db       *Database
	bus      *event.EventBus
	logger   *slog.Logger
	failures prometheus.Counter
	subs     map[event.EventType]event.EventSubscriberId
	err      error
	lost     uint64
	mu       sync.Mutex
	stopped  bool
}

// RegisterJournal subscribes a new journal to every campaign and registry
// event type on bus
func (d *Database) RegisterJournal(bus *event.EventBus) *Journal {
	logger := d.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	j := &Journal{
		db:     d,
		bus:    bus,
		logger: logger.With("component", "journal"),
		failures: promauto.With(d.config.PromRegistry).NewCounter(
			prometheus.CounterOpts{
				Name: "crowdfund_journal_write_failures_total",
				Help: "events that could not be written to the journal",
			},
		),
		subs: make(map[event.EventType]event.EventSubscriberId),
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, evtType := range JournalEventTypes {
		j.subs[evtType] = bus.RegisterSubscriber(evtType, j)
	}
	return j
}

// Deliver implements event.Subscriber. Writes are retried, and an event
// that still cannot be stored is logged, counted and recorded for Err. It
// always returns nil so that the bus keeps the journal subscribed.
func (j *Journal) Deliver(evt event.Event) error {
	ce, ok := evt.Data.(campaignEvent)
	if !ok {
		j.logger.Warn(
			"ignoring event without campaign",
			"type", evt.Type,
		)
		return nil
	}
	val, err := encodeJournalRecord(evt, ce.CampaignID())
	if err != nil {
		j.fail(evt, ce.CampaignID(), err)
		return nil
	}
	for attempt := 1; ; attempt++ {
		err = j.append(ce.CampaignID(), val)
		if err == nil {
			return nil
		}
		if attempt == journalWriteAttempts {
			break
		}
		j.logger.Warn(
			"journal write failed, retrying",
			"type", evt.Type,
			"attempt", attempt,
			"error", err,
		)
		time.Sleep(time.Duration(attempt) * journalRetryDelay)
	}
	j.fail(evt, ce.CampaignID(), err)
	return nil
}

func encodeJournalRecord(evt event.Event, id campaign.ID) ([]byte, error) {
	data, err := journalEncMode.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	val, err := journalEncMode.Marshal(journalRecord{
		Type:     string(evt.Type),
		Time:     evt.Timestamp,
		Campaign: uint64(id),
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode journal record: %w", err)
	}
	return val, nil
}

func (j *Journal) append(id campaign.ID, val []byte) error {
	seq, err := j.db.blob.NextSequence(
		context.Background(),
		[]byte(types.EventSequenceKey),
	)
	if err != nil {
		return fmt.Errorf("next journal sequence: %w", err)
	}
	key := types.EventBlobKey(uint64(id), seq)
	return j.db.blobDo(true, func(txn types.Txn) error {
		return j.db.blob.Set(txn, key, val)
	})
}

func (j *Journal) fail(evt event.Event, id campaign.ID, err error) {
	j.failures.Inc()
	j.logger.Error(
		"event lost from journal",
		"type", evt.Type,
		"campaign", id,
		"error", err,
	)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lost++
	if j.err == nil {
		j.err = fmt.Errorf("journal %s event of campaign %s: %w", evt.Type, id, err)
	}
}

// Err returns the first journaling failure, or nil when every delivered
// event was stored
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Lost returns the number of events that could not be stored
func (j *Journal) Lost() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lost
}

// Close implements event.Subscriber. The bus calls it for each event type
// it drops the journal from. Outside of Stop that means events of that type
// are no longer recorded, which Err reports.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.stopped && j.err == nil {
		j.err = ErrJournalDetached
	}
}

// Stop unsubscribes the journal from every event type
func (j *Journal) Stop() {
	j.mu.Lock()
	j.stopped = true
	subs := j.subs
	j.subs = make(map[event.EventType]event.EventSubscriberId)
	j.mu.Unlock()
	for evtType, id := range subs {
		j.bus.Unsubscribe(evtType, id)
	}
}

// Events returns the journal of a campaign in publication order
func (d *Database) Events(
	ctx context.Context,
	id campaign.ID,
) (ret []JournalEntry, err error) {
	ctx, span := tracer.Start(
		ctx,
		"Events",
		trace.WithAttributes(
			attribute.Int64("campaign.id", int64(id)), //nolint:gosec // ids are small
		),
	)
	defer func() { endSpan(span, err) }()
	return d.scanJournal(ctx, types.EventBlobPrefix(uint64(id)))
}

// AllEvents returns the journal of every campaign in publication order
func (d *Database) AllEvents(ctx context.Context) (ret []JournalEntry, err error) {
	ctx, span := tracer.Start(ctx, "AllEvents")
	defer func() { endSpan(span, err) }()
	ret, err = d.scanJournal(ctx, []byte(types.EventBlobKeyPrefix))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ret, func(a, b JournalEntry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return ret, nil
}

func (d *Database) scanJournal(
	ctx context.Context,
	prefix []byte,
) ([]JournalEntry, error) {
	var ret []JournalEntry
	err := d.blobDo(false, func(txn types.Txn) error {
		iter := d.blob.NewIterator(
			txn,
			types.BlobIteratorOptions{Prefix: prefix},
		)
		defer iter.Close()
		for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			key := item.Key()
			_, seq, err := types.ParseEventBlobKey(key)
			if err != nil {
				return fmt.Errorf("journal key %x: %w", key, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := decodeJournalRecord(val)
			if err != nil {
				return fmt.Errorf("journal entry %d: %w", seq, err)
			}
			entry.Seq = seq
			ret = append(ret, entry)
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func decodeJournalRecord(val []byte) (JournalEntry, error) {
	var rec journalRecord
	if err := cbor.Unmarshal(val, &rec); err != nil {
		return JournalEntry{}, err
	}
	entry := JournalEntry{
		Time:     rec.Time.UTC(),
		Type:     event.EventType(rec.Type),
		Campaign: campaign.ID(rec.Campaign),
		Data:     rec.Data,
	}
	decode, ok := journalDecoders[entry.Type]
	if !ok {
		return entry, nil
	}
	data, err := decode(rec.Data)
	if err != nil {
		return JournalEntry{}, errors.Join(
			fmt.Errorf("decode %s event", rec.Type),
			err,
		)
	}
	entry.Data = data
	return entry, nil
}
