/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package activeplayer keeps every dashboard fragment agreed on one
// selected player.
//
// Agreement runs over the shared broker with two messages: changed carries
// the newly active entity, requested asks whoever knows the active entity to
// announce it again. A fragment mounted late therefore converges as soon as
// any holder answers its request.
package activeplayer

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

// Source records why a selection happened.
type Source string

const (
	SourceUser      Source = "user"
	SourceDeepLink  Source = "deep_link"
	SourceReconcile Source = "reconcile"
	SourceRender    Source = "render"
	SourceReply     Source = "reply"
	SourceRemote    Source = "remote"
)

// Coordinator owns the active player value for one process.
type Coordinator struct {
	mu     sync.RWMutex
	active string

	bus       events.Broker
	listeners *events.Bus
	subs      []*events.Subscription
	closeOnce sync.Once
	logger    zerolog.Logger
}

// NewCoordinator attaches a coordinator to bus. Close releases it.
func NewCoordinator(bus events.Broker, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		bus:       bus,
		listeners: events.NewBus(),
		logger:    logger.With().Str("component", "active_player").Logger(),
	}
	c.subs = append(c.subs,
		bus.Subscribe(events.EventActivePlayerChanged, c.onChanged),
		bus.Subscribe(events.EventActivePlayerRequested, c.onRequested),
	)
	return c
}

// Get returns the active entity id, or "" when none is known yet.
func (c *Coordinator) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Select makes id active and announces it. Announcing the already active id
// broadcasts again but does not notify local listeners.
func (c *Coordinator) Select(id string, source Source) {
	if id == "" {
		return
	}
	c.adopt(id, source)
	c.bus.Publish(events.EventActivePlayerChanged, events.Payload{
		"entity_id": id,
		"source":    string(source),
	})
}

// SelectFrom is a user-driven selection made on the page at addr. It selects
// id and records it in addr. A nil addr only selects.
func (c *Coordinator) SelectFrom(addr Address, id string) {
	if id == "" {
		return
	}
	c.Select(id, SourceUser)
	if addr != nil {
		addr.SetSelected(id)
	}
}

// Announce re-broadcasts id on behalf of a reconciliation.
func (c *Coordinator) Announce(id string) {
	c.Select(id, SourceReconcile)
}

// Request asks every holder of the active value to announce it.
func (c *Coordinator) Request() {
	c.bus.Publish(events.EventActivePlayerRequested, events.Payload{})
}

// Subscribe calls fn with the new id whenever the active player changes.
func (c *Coordinator) Subscribe(fn func(id string)) *events.Subscription {
	return c.listeners.Subscribe(events.EventActivePlayerChanged, func(p events.Payload) {
		fn(p.String("entity_id"))
	})
}

// Close detaches the coordinator from the broker.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		for _, sub := range c.subs {
			sub.Close()
		}
	})
}

// adopt stores id and notifies listeners when it differs from the current
// value. It never publishes on the broker.
func (c *Coordinator) adopt(id string, source Source) bool {
	c.mu.Lock()
	if c.active == id {
		c.mu.Unlock()
		return false
	}
	prev := c.active
	c.active = id
	c.mu.Unlock()

	telemetry.ActivePlayerChangesTotal.WithLabelValues(string(source)).Inc()
	c.logger.Debug().Str("entity_id", id).Str("previous", prev).Str("source", string(source)).Msg("active player changed")
	c.listeners.Publish(events.EventActivePlayerChanged, events.Payload{"entity_id": id})
	return true
}

func (c *Coordinator) onChanged(p events.Payload) {
	id := p.String("entity_id")
	if id == "" {
		return
	}
	source := Source(p.String("source"))
	if p.String("origin") != "" || source == "" {
		source = SourceRemote
	}
	c.adopt(id, source)
}

func (c *Coordinator) onRequested(events.Payload) {
	if id := c.Get(); id != "" {
		c.bus.Publish(events.EventActivePlayerChanged, events.Payload{
			"entity_id": id,
			"source":    string(SourceReply),
		})
	}
}
