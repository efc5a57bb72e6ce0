/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package activeplayer

import (
	"sync"

	"github.com/friendsincode/speakergroups/internal/events"
)

// Fragment is one mounted player tile. It tracks which entity it believes is
// active and answers requests when that entity is its own.
type Fragment struct {
	coord    *Coordinator
	entityID string
	addr     Address

	mu     sync.RWMutex
	active string
	subs   []*events.Subscription
	closed bool
}

// Mount attaches a tile for entityID. The address is read once: a deep link
// to entityID selects it, anything else asks the other holders to announce.
func (c *Coordinator) Mount(entityID string, addr Address) *Fragment {
	f := &Fragment{coord: c, entityID: entityID, addr: addr}
	f.subs = []*events.Subscription{
		c.bus.Subscribe(events.EventActivePlayerChanged, f.onChanged),
		c.bus.Subscribe(events.EventActivePlayerRequested, f.onRequested),
	}

	if addr != nil && addr.Selected() == entityID {
		c.Select(entityID, SourceDeepLink)
		return f
	}
	c.Request()
	return f
}

// EntityID returns the tile's own entity.
func (f *Fragment) EntityID() string {
	return f.entityID
}

// Active returns the entity this fragment believes is active.
func (f *Fragment) Active() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active
}

// IsActive reports whether the tile's own entity is the active one.
func (f *Fragment) IsActive() bool {
	return f.Active() == f.entityID
}

// Render re-announces the tile's entity when it is the active one.
func (f *Fragment) Render() {
	if f.isClosed() || !f.IsActive() {
		return
	}
	f.coord.Select(f.entityID, SourceRender)
}

// Click selects the tile's entity and records it in the address.
func (f *Fragment) Click() {
	if f.isClosed() || f.IsActive() {
		return
	}
	f.coord.SelectFrom(f.addr, f.entityID)
}

// Unmount releases both subscriptions. Further calls are no-ops.
func (f *Fragment) Unmount() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (f *Fragment) isClosed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.closed
}

func (f *Fragment) onChanged(p events.Payload) {
	id := p.String("entity_id")
	if id == "" {
		return
	}
	f.mu.Lock()
	f.active = id
	f.mu.Unlock()
}

func (f *Fragment) onRequested(events.Payload) {
	if f.IsActive() {
		f.coord.bus.Publish(events.EventActivePlayerChanged, events.Payload{
			"entity_id": f.entityID,
			"source":    string(SourceReply),
		})
	}
}
