/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
)

// GroupTile is one entry of the dashboard's group list. Ungrouped players
// get a tile of their own.
type GroupTile struct {
	ID        string               `json:"id"`
	EntityIDs []string             `json:"entity_ids"`
	Rooms     []string             `json:"rooms"`
	Track     string               `json:"track,omitempty"`
	State     models.PlaybackState `json:"state"`
	Playing   bool                 `json:"playing"`
	Active    bool                 `json:"active"`
}

func (a *API) handlePlayersList(w http.ResponseWriter, r *http.Request) {
	players := a.store.Snapshot().Players
	if players == nil {
		players = []models.MediaPlayer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

func (a *API) handlePlayersGet(w http.ResponseWriter, r *http.Request) {
	player, err := a.store.Player(chi.URLParam(r, "entityID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (a *API) handleGroupsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": BuildTiles(a.store.Snapshot(), a.coordinator.Get()),
	})
}

func (a *API) handlePlayerCommand(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	player, err := a.store.Player(chi.URLParam(r, "entityID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var args control.Args
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	err = a.control.Run(r.Context(), command, player, args)
	a.recordAudit(r, models.AuditActionPlayerCommand, player.ID, outcomeOf(err), events.Payload{"command": command})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"entity_id": player.ID,
		"command":   command,
	})
}

// BuildTiles lists live groups and lone players in snapshot order. The group
// tile's track and state come from its coordinator.
func BuildTiles(snap models.Snapshot, active string) []GroupTile {
	byEntity := make(map[string]models.Group)
	for _, g := range snap.Groups() {
		for _, id := range g.EntityIDs {
			byEntity[id] = g
		}
	}

	tiles := make([]GroupTile, 0, len(snap.Players))
	seen := make(map[string]bool)
	for _, p := range snap.Players {
		g, grouped := byEntity[p.ID]
		if !grouped {
			g = models.Group{ID: p.ID, EntityIDs: []string{p.ID}, Playing: p.IsPlaying()}
		}
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true

		tile := GroupTile{
			ID:        g.ID,
			EntityIDs: g.EntityIDs,
			Playing:   g.Playing,
			Active:    active != "" && g.Contains(active),
		}
		for _, id := range g.EntityIDs {
			if member, ok := snap.Player(id); ok {
				tile.Rooms = append(tile.Rooms, member.RoomName)
			}
		}
		if lead, ok := snap.Player(g.ID); ok {
			tile.Track = lead.CurrentTrack()
			tile.State = lead.State
		}
		tiles = append(tiles, tile)
	}
	return tiles
}
