/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package groupconfig

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
)

// ErrGroupNotFound is returned by Get for an unknown name.
var ErrGroupNotFound = errors.New("predefined group not found")

// Registry holds the current predefined groups. A failed reload keeps the
// previous groups.
type Registry struct {
	mu     sync.RWMutex
	groups []models.PredefinedGroup
	source Source
	bus    events.Broker
	logger zerolog.Logger
}

// NewRegistry creates an empty registry reading from source. bus may be nil.
func NewRegistry(source Source, bus events.Broker, logger zerolog.Logger) *Registry {
	return &Registry{
		source: source,
		bus:    bus,
		logger: logger.With().Str("component", "groupconfig").Logger(),
	}
}

// List returns the groups in configured order.
func (r *Registry) List() []models.PredefinedGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.PredefinedGroup(nil), r.groups...)
}

// Get looks a group up by name.
func (r *Registry) Get(name string) (models.PredefinedGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pg := range r.groups {
		if pg.Name == name {
			return pg, nil
		}
	}
	return models.PredefinedGroup{}, ErrGroupNotFound
}

// Reload fetches, parses and swaps in the document.
func (r *Registry) Reload(ctx context.Context) error {
	if r.source == nil {
		return nil
	}
	data, err := r.source.Fetch(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("source", r.source.String()).Msg("failed to fetch predefined groups")
		return err
	}
	groups, err := Parse(data)
	if err != nil {
		r.logger.Error().Err(err).Str("source", r.source.String()).Msg("rejected predefined groups")
		return err
	}
	r.Replace(groups)
	r.logger.Info().Str("source", r.source.String()).Int("groups", len(groups)).Msg("predefined groups loaded")
	return nil
}

// Replace swaps in already validated groups.
func (r *Registry) Replace(groups []models.PredefinedGroup) {
	r.mu.Lock()
	r.groups = append([]models.PredefinedGroup(nil), groups...)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(events.EventGroupsReloaded, events.Payload{"groups": len(groups)})
	}
}
