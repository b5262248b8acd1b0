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

package event

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type subscription struct {
	sub  Subscriber
	kind string
}

// EventBus fans out published events to the subscribers of each type.
// Publish delivers synchronously in the caller's goroutine, so a single
// publisher's events reach each subscriber in publish order.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]subscription
	metrics     *eventMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	handlerWg   sync.WaitGroup
}

// NewEventBus creates a new EventBus. Both arguments may be nil.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]subscription),
		metrics:     newEventMetrics(promRegistry),
		logger:      logger.With("component", "event"),
	}
}

func (e *EventBus) add(eventType EventType, s subscription) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubId++
	subs, ok := e.subscribers[eventType]
	if !ok {
		subs = make(map[EventSubscriberId]subscription)
		e.subscribers[eventType] = subs
	}
	subs[e.lastSubId] = s
	e.metrics.subscribers.WithLabelValues(string(eventType), s.kind).Inc()
	return e.lastSubId
}

// Subscribe returns a channel receiving events of the given type. The
// channel is closed by Unsubscribe or Stop.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	ch := newChannelSubscriber(EventQueueSize, e.logger)
	return e.add(eventType, subscription{sub: ch, kind: kindChannel}), ch.ch
}

// SubscribeFunc runs handlerFunc in its own goroutine for every event of
// the given type. A panicking handler is logged and keeps receiving.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	e.handlerWg.Add(1)
	go func() {
		defer e.handlerWg.Done()
		for evt := range evtCh {
			e.runHandler(handlerFunc, evt)
		}
	}()
	return subId
}

func (e *EventBus) runHandler(handlerFunc EventHandlerFunc, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panic", "type", evt.Type, "panic", r)
		}
	}()
	handlerFunc(evt)
}

// RegisterSubscriber adds an externally implemented subscriber, such as a
// persistent event sink, and returns its id
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.add(eventType, subscription{sub: sub, kind: kindExternal})
}

// Unsubscribe removes and closes a subscriber. Unknown ids are ignored.
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	s, ok := e.subscribers[eventType][subId]
	if ok {
		delete(e.subscribers[eventType], subId)
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
		e.metrics.subscribers.WithLabelValues(string(eventType), s.kind).Dec()
	}
	e.mu.Unlock()
	if ok {
		s.sub.Close()
	}
}

// Publish delivers an event to every subscriber of its type. Subscribers
// whose Deliver fails or panics are unregistered.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	ids := make([]EventSubscriberId, 0, len(e.subscribers[eventType]))
	subs := make([]subscription, 0, len(e.subscribers[eventType]))
	for id, s := range e.subscribers[eventType] {
		ids = append(ids, id)
		subs = append(subs, s)
	}
	e.mu.RUnlock()
	e.metrics.published.WithLabelValues(string(eventType)).Inc()
	for i, s := range subs {
		err := safeDeliver(s.sub, evt)
		if err == nil {
			continue
		}
		e.metrics.deliveryErrors.WithLabelValues(string(eventType), s.kind).Inc()
		e.logger.Warn(
			"event delivery failed, subscriber removed",
			"type", eventType,
			"error", err,
		)
		e.Unsubscribe(eventType, ids[i])
	}
}

// Stop closes all subscribers and waits for SubscribeFunc handlers to drain.
// The EventBus can still be used after Stop.
func (e *EventBus) Stop() {
	e.mu.Lock()
	all := e.subscribers
	e.subscribers = make(map[EventType]map[EventSubscriberId]subscription)
	e.mu.Unlock()
	for _, subs := range all {
		for _, s := range subs {
			s.sub.Close()
		}
	}
	e.metrics.subscribers.Reset()
	e.handlerWg.Wait()
}
