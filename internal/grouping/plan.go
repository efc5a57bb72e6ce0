/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package grouping converges the live speaker topology to a predefined group.
package grouping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/speakergroups/internal/models"
)

// ErrEmptyGroup is returned for a predefined group with no entities.
var ErrEmptyGroup = errors.New("predefined group has no entities")

// StepKind identifies one reconciliation action.
type StepKind string

const (
	StepUnjoin       StepKind = "unjoin"
	StepAnnounce     StepKind = "announce"
	StepJoin         StepKind = "join"
	StepSetVolume    StepKind = "set_volume"
	StepSetMute      StepKind = "set_mute"
	StepSelectSource StepKind = "select_source"
)

// Step is one planned action. Only the fields relevant to Kind are set.
type Step struct {
	Kind StepKind `json:"kind"`
	// EntityID is the addressed player (main player for join).
	EntityID string `json:"entity_id,omitempty"`
	// EntityIDs lists the players to unjoin, or the join members.
	EntityIDs []string `json:"entity_ids,omitempty"`
	Volume    int      `json:"volume,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// Noop reports whether executing the step would make no hub call.
func (s Step) Noop() bool {
	switch s.Kind {
	case StepUnjoin, StepJoin:
		return len(s.EntityIDs) == 0
	}
	return false
}

// Entities returns every player id the step touches.
func (s Step) Entities() []string {
	var ids []string
	if s.EntityID != "" {
		ids = append(ids, s.EntityID)
	}
	return append(ids, s.EntityIDs...)
}

func (s Step) String() string {
	switch s.Kind {
	case StepUnjoin:
		return fmt.Sprintf("unjoin [%s]", strings.Join(s.EntityIDs, ","))
	case StepJoin:
		return fmt.Sprintf("join %s <- [%s]", s.EntityID, strings.Join(s.EntityIDs, ","))
	case StepSetVolume:
		return fmt.Sprintf("set_volume %s %d", s.EntityID, s.Volume)
	case StepSelectSource:
		return fmt.Sprintf("select_source %s %q", s.EntityID, s.Source)
	default:
		return fmt.Sprintf("%s %s", s.Kind, s.EntityID)
	}
}

// Plan is the ordered list of steps that converges the topology to Group.
type Plan struct {
	Group models.PredefinedGroup `json:"group"`
	// Anchor is the live group chosen as the starting point, if any.
	Anchor *models.Group `json:"anchor,omitempty"`
	Main   string        `json:"main"`
	Steps  []Step        `json:"steps"`
}

// BuildPlan derives the reconciliation steps for pg against snap.
//
// The anchor is the first live group that overlaps pg and is playing, else
// the first overlapping group. With an anchor, its entities outside pg are
// unjoined first. The main player is the anchor's coordinator when the
// anchor is playing and the coordinator belongs to pg; otherwise it is pg's
// first entity. Volumes, unmutes and the
// source selection follow the join in pg's entity order.
func BuildPlan(pg models.PredefinedGroup, snap models.Snapshot) (Plan, error) {
	if len(pg.Entities) == 0 {
		return Plan{}, ErrEmptyGroup
	}

	plan := Plan{Group: pg, Main: pg.Main()}

	if anchor, ok := findAnchor(pg, snap.Groups()); ok {
		plan.Anchor = &anchor

		var notInGroup []string
		for _, id := range anchor.EntityIDs {
			if !pg.Contains(id) {
				notInGroup = append(notInGroup, id)
			}
		}
		plan.Steps = append(plan.Steps, Step{Kind: StepUnjoin, EntityIDs: notInGroup})

		if anchor.Playing && pg.Contains(anchor.ID) {
			plan.Main = anchor.ID
		}
	}

	var members []string
	for _, id := range pg.IDs() {
		if id != plan.Main {
			members = append(members, id)
		}
	}
	plan.Steps = append(plan.Steps,
		Step{Kind: StepAnnounce, EntityID: plan.Main},
		Step{Kind: StepJoin, EntityID: plan.Main, EntityIDs: members},
	)

	for _, e := range pg.Entities {
		if v, ok := pg.VolumeFor(e); ok {
			plan.Steps = append(plan.Steps, Step{Kind: StepSetVolume, EntityID: e.Player, Volume: v})
		}
	}
	if pg.UnmuteWhenGrouped {
		for _, e := range pg.Entities {
			plan.Steps = append(plan.Steps, Step{Kind: StepSetMute, EntityID: e.Player})
		}
	}
	if pg.Media != "" {
		plan.Steps = append(plan.Steps, Step{Kind: StepSelectSource, EntityID: pg.Main(), Source: pg.Media})
	}

	return plan, nil
}

func findAnchor(pg models.PredefinedGroup, groups []models.Group) (models.Group, bool) {
	var first *models.Group
	for i := range groups {
		g := groups[i]
		if !overlaps(pg, g) {
			continue
		}
		if g.Playing {
			return g, true
		}
		if first == nil {
			first = &groups[i]
		}
	}
	if first == nil {
		return models.Group{}, false
	}
	return *first, true
}

func overlaps(pg models.PredefinedGroup, g models.Group) bool {
	for _, id := range g.EntityIDs {
		if pg.Contains(id) {
			return true
		}
	}
	return false
}
