/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"sync/atomic"
)

// EventType enumerates event categories.
type EventType string

const (
	// Active player protocol
	EventActivePlayerChanged   EventType = "active_player.changed"
	EventActivePlayerRequested EventType = "active_player.requested"

	// Hub state
	EventSnapshotUpdated EventType = "hub.snapshot_updated"

	// Reconciliation progress
	EventReconcileStep     EventType = "group.reconcile_step"
	EventReconcileFinished EventType = "group.reconcile_finished"

	// Predefined group configuration
	EventGroupsReloaded EventType = "config.groups_reloaded"

	// Controller actions taken through the API
	EventControlAudited EventType = "audit.control"
)

// Payload generic event payload.
type Payload map[string]any

// String returns the payload value for key, or "".
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Handler receives event payloads. Handlers run synchronously on the
// publishing goroutine and may publish further events.
type Handler func(Payload)

// Broker is the publish/subscribe contract shared by the in-process bus and
// the distributed bridges.
type Broker interface {
	Subscribe(eventType EventType, handler Handler) *Subscription
	Publish(eventType EventType, payload Payload)
}

// Subscription is the capability returned by Subscribe. Close must be called
// when the subscriber is torn down.
type Subscription struct {
	bus       *Bus
	eventType EventType
	id        uint64
	once      sync.Once
}

// Close removes the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.eventType, s.id)
	})
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus implements a simple in-process pubsub with synchronous delivery.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]entry
	nextID atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]entry)}
}

// Subscribe registers a handler for event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], entry{id: id, handler: handler})
	b.mu.Unlock()
	return &Subscription{bus: b, eventType: eventType, id: id}
}

// Publish delivers payload to every current subscriber, in subscription order.
// The subscriber list is copied first, so handlers added or removed during
// delivery take effect from the next Publish.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]entry(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		if b.active(eventType, sub.id) {
			sub.handler(payload)
		}
	}
}

// SubscriberCount returns the number of live subscriptions for event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// active reports whether subscription id is still registered. A handler
// removed by an earlier handler of the same Publish is skipped.
func (b *Bus) active(eventType EventType, id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.subs[eventType] {
		if e.id == id {
			return true
		}
	}
	return false
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, eventType)
		return
	}
	b.subs[eventType] = subs
}
