/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

// GroupEntity is one speaker of a predefined group with an optional volume override.
type GroupEntity struct {
	Player string `json:"player" yaml:"player"`
	Volume *int   `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// PredefinedGroup is a user-configured desired grouping. The first entity is
// the group's designated main player.
type PredefinedGroup struct {
	Name              string        `json:"name" yaml:"name"`
	Entities          []GroupEntity `json:"entities" yaml:"entities"`
	Volume            *int          `json:"volume,omitempty" yaml:"volume,omitempty"`
	UnmuteWhenGrouped bool          `json:"unmute_when_grouped,omitempty" yaml:"unmute_when_grouped,omitempty"`
	Media             string        `json:"media,omitempty" yaml:"media,omitempty"`
}

// Main returns the designated main player, or "" for an empty group.
func (pg PredefinedGroup) Main() string {
	if len(pg.Entities) == 0 {
		return ""
	}
	return pg.Entities[0].Player
}

// IDs returns every entity id in configured order.
func (pg PredefinedGroup) IDs() []string {
	ids := make([]string, 0, len(pg.Entities))
	for _, e := range pg.Entities {
		ids = append(ids, e.Player)
	}
	return ids
}

// Contains reports whether id is part of the group.
func (pg PredefinedGroup) Contains(id string) bool {
	for _, e := range pg.Entities {
		if e.Player == id {
			return true
		}
	}
	return false
}

// VolumeFor resolves the volume to apply to e: its own override, else the
// group default. ok is false when neither is set.
func (pg PredefinedGroup) VolumeFor(e GroupEntity) (volume int, ok bool) {
	if e.Volume != nil {
		return *e.Volume, true
	}
	if pg.Volume != nil {
		return *pg.Volume, true
	}
	return 0, false
}
