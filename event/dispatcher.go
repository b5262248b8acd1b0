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

import "sync"

// Dispatcher publishes events to a bus in the order they were pushed.
//
// Producers push while holding their own state lock, which fixes the
// order, and call Flush after releasing it. Only one goroutine delivers at
// a time and no lock is held while a subscriber runs, so a subscriber may
// read or mutate the producer. Events pushed while another goroutine is
// delivering are delivered by that goroutine before its Flush returns.
type Dispatcher struct {
	bus      *EventBus
	queue    []Event
	mu       sync.Mutex
	draining bool
}

// NewDispatcher returns a dispatcher for bus. A nil bus discards events.
func NewDispatcher(bus *EventBus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

// Push queues events for delivery
func (d *Dispatcher) Push(evts ...Event) {
	if d == nil || d.bus == nil || len(evts) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, evts...)
	d.mu.Unlock()
}

// Flush delivers queued events unless another goroutine is already
// delivering
func (d *Dispatcher) Flush() {
	if d == nil || d.bus == nil {
		return
	}
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	for len(d.queue) > 0 {
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		for _, evt := range batch {
			d.bus.Publish(evt.Type, evt)
		}
		d.mu.Lock()
	}
	d.draining = false
	d.mu.Unlock()
}
