// Copyright 2026 The Packride Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import "sync"

// Handler consumes one inbound event.
type Handler func(Event)

// Bus is the typed publish/subscribe layer over the connection's
// inbound event stream. Handlers for one event type run in
// registration order; there is no ordering guarantee across types and
// no replay for late subscribers.
//
// Bus is safe for concurrent use, but events published from the
// connection's read loop are dispatched sequentially, so per-type
// delivery order follows network arrival order.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]*subscription
}

type subscription struct {
	handler Handler
	removed bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]*subscription)}
}

// On registers a handler for an event type and returns its disposer.
// The disposer is idempotent and safe to call from inside a handler
// during dispatch: a handler unsubscribing itself mid-dispatch does
// not skip or double-invoke its siblings.
func (b *Bus) On(eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{handler: handler}
	b.handlers[eventType] = append(b.handlers[eventType], sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.removed {
			return
		}
		sub.removed = true
		list := b.handlers[eventType]
		for i, candidate := range list {
			if candidate == sub {
				b.handlers[eventType] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers an event to every handler registered for its type,
// in registration order. Dispatch iterates over a snapshot taken at
// publish time; handlers removed mid-dispatch are skipped, handlers
// added mid-dispatch do not see this event.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	snapshot := make([]*subscription, len(b.handlers[event.Type]))
	copy(snapshot, b.handlers[event.Type])
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.mu.Lock()
		removed := sub.removed
		b.mu.Unlock()
		if removed {
			continue
		}
		sub.handler(event)
	}
}

// SubscriptionSet collects disposers so a view can release every
// subscription it registered in one call on teardown. Subscriptions
// must not outlive the view that registered them.
type SubscriptionSet struct {
	mu        sync.Mutex
	disposers []func()
	closed    bool
}

// Add registers a disposer with the set. If the set is already
// closed, the disposer runs immediately.
func (s *SubscriptionSet) Add(dispose func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		dispose()
		return
	}
	s.disposers = append(s.disposers, dispose)
	s.mu.Unlock()
}

// Close runs every collected disposer in reverse registration order.
// Idempotent.
func (s *SubscriptionSet) Close() {
	s.mu.Lock()
	disposers := s.disposers
	s.disposers = nil
	s.closed = true
	s.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
}
