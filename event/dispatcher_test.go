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

package event_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/crowdfund/event"
)

type recordingSink struct {
	onDeliver func(event.Event)
	events    []event.Event
	mu        sync.Mutex
}

func (s *recordingSink) Deliver(evt event.Event) error {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	if s.onDeliver != nil {
		s.onDeliver(evt)
	}
	return nil
}

func (s *recordingSink) Close() {}

func (s *recordingSink) data() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]any, 0, len(s.events))
	for _, evt := range s.events {
		ret = append(ret, evt.Data)
	}
	return ret
}

func TestDispatcherDeliversInPushOrder(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	sink := &recordingSink{}
	eb.RegisterSubscriber(testEvtType, sink)
	d := event.NewDispatcher(eb)

	// Push order is fixed under the producer's lock, delivery happens later
	var mu sync.Mutex
	next := 0
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				mu.Lock()
				d.Push(event.NewEvent(testEvtType, next))
				next++
				mu.Unlock()
				d.Flush()
			}
		}()
	}
	wg.Wait()

	got := sink.data()
	require.Len(t, got, 400)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestDispatcherReentrantPush(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	d := event.NewDispatcher(eb)
	sink := &recordingSink{}
	sink.onDeliver = func(evt event.Event) {
		if evt.Data == "first" {
			// Must not block, the outer Flush delivers it
			d.Push(event.NewEvent(testEvtType, "nested"))
			d.Flush()
		}
	}
	eb.RegisterSubscriber(testEvtType, sink)

	d.Push(
		event.NewEvent(testEvtType, "first"),
		event.NewEvent(testEvtType, "second"),
	)
	d.Flush()
	assert.Equal(t, []any{"first", "second", "nested"}, sink.data())
}

func TestDispatcherNilBus(t *testing.T) {
	d := event.NewDispatcher(nil)
	d.Push(event.NewEvent(testEvtType, 1))
	d.Flush()
	var nilDispatcher *event.Dispatcher
	nilDispatcher.Push(event.NewEvent(testEvtType, 1))
	nilDispatcher.Flush()
}
