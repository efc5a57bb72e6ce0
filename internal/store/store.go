/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store holds the latest player snapshot reported by the hub.
package store

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

// ErrUnknownEntity is returned when a player id is not in the snapshot.
var ErrUnknownEntity = errors.New("unknown entity")

// Store is the single source of player state. Every update swaps in a new
// Snapshot value; snapshots already handed out are never modified.
type Store struct {
	mu     sync.RWMutex
	snap   models.Snapshot
	bus    events.Broker
	logger zerolog.Logger
}

// New creates an empty store. bus may be nil.
func New(bus events.Broker, logger zerolog.Logger) *Store {
	return &Store{
		bus:    bus,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Player returns one player from the current snapshot.
func (s *Store) Player(id string) (models.MediaPlayer, error) {
	if p, ok := s.Snapshot().Player(id); ok {
		return p, nil
	}
	return models.MediaPlayer{}, ErrUnknownEntity
}

// Replace swaps in a complete snapshot.
func (s *Store) Replace(snap models.Snapshot) {
	players := append(make([]models.MediaPlayer, 0, len(snap.Players)), snap.Players...)
	s.update("", func([]models.MediaPlayer) []models.MediaPlayer { return players })
}

// Apply inserts or updates one player, keeping its position in the order.
func (s *Store) Apply(player models.MediaPlayer) {
	s.update(player.ID, func(cur []models.MediaPlayer) []models.MediaPlayer {
		players := make([]models.MediaPlayer, 0, len(cur)+1)
		replaced := false
		for _, p := range cur {
			if p.ID == player.ID {
				players = append(players, player)
				replaced = true
				continue
			}
			players = append(players, p)
		}
		if !replaced {
			players = append(players, player)
		}
		return players
	})
}

// Remove drops a player from the snapshot.
func (s *Store) Remove(id string) {
	s.update(id, func(cur []models.MediaPlayer) []models.MediaPlayer {
		players := make([]models.MediaPlayer, 0, len(cur))
		for _, p := range cur {
			if p.ID != id {
				players = append(players, p)
			}
		}
		if len(players) == len(cur) {
			return nil
		}
		return players
	})
}

// update builds the next player list from the current one under the write
// lock. A nil result means nothing changed.
func (s *Store) update(entityID string, next func([]models.MediaPlayer) []models.MediaPlayer) {
	s.mu.Lock()
	players := next(s.snap.Players)
	if players == nil {
		s.mu.Unlock()
		return
	}
	s.snap = models.Snapshot{Players: players}
	s.mu.Unlock()

	telemetry.SnapshotPlayers.Set(float64(len(players)))
	s.logger.Debug().Str("entity_id", entityID).Int("players", len(players)).Msg("snapshot updated")
	if s.bus != nil {
		s.bus.Publish(events.EventSnapshotUpdated, events.Payload{
			"entity_id": entityID,
			"players":   len(players),
		})
	}
}
