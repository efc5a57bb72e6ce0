/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package groupconfig loads the user's predefined speaker groups.
//
// The file is YAML:
//
//	groups:
//	  - name: Downstairs
//	    volume: 30
//	    unmute_when_grouped: true
//	    media: radio1
//	    entities:
//	      - media_player.living_room
//	      - player: media_player.kitchen
//	        volume: 45
package groupconfig

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/speakergroups/internal/models"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid group config")

type document struct {
	Groups []rawGroup `yaml:"groups"`
}

type rawGroup struct {
	Name              string      `yaml:"name"`
	Entities          []rawEntity `yaml:"entities"`
	Volume            *int        `yaml:"volume"`
	UnmuteWhenGrouped bool        `yaml:"unmute_when_grouped"`
	Media             string      `yaml:"media"`
}

// rawEntity accepts either a bare entity id or a {player, volume} mapping.
type rawEntity models.GroupEntity

func (e *rawEntity) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Player = node.Value
		return nil
	}
	var full models.GroupEntity
	if err := node.Decode(&full); err != nil {
		return err
	}
	*e = rawEntity(full)
	return nil
}

// Parse decodes and validates a group document.
func Parse(data []byte) ([]models.PredefinedGroup, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	groups := make([]models.PredefinedGroup, 0, len(doc.Groups))
	for _, rg := range doc.Groups {
		pg := models.PredefinedGroup{
			Name:              strings.TrimSpace(rg.Name),
			Volume:            rg.Volume,
			UnmuteWhenGrouped: rg.UnmuteWhenGrouped,
			Media:             rg.Media,
		}
		for _, re := range rg.Entities {
			e := models.GroupEntity(re)
			e.Player = strings.TrimSpace(e.Player)
			pg.Entities = append(pg.Entities, e)
		}
		groups = append(groups, pg)
	}

	if err := Validate(groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Validate checks names, entity lists and volume ranges.
func Validate(groups []models.PredefinedGroup) error {
	var errs []error
	names := make(map[string]bool, len(groups))

	for i, pg := range groups {
		label := pg.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			errs = append(errs, fmt.Errorf("group %s: name is required", label))
		} else if names[pg.Name] {
			errs = append(errs, fmt.Errorf("group %s: duplicate name", label))
		}
		names[pg.Name] = true

		if len(pg.Entities) == 0 {
			errs = append(errs, fmt.Errorf("group %s: at least one entity is required", label))
		}
		if pg.Volume != nil && !validVolume(*pg.Volume) {
			errs = append(errs, fmt.Errorf("group %s: volume %d out of range 0-100", label, *pg.Volume))
		}

		seen := make(map[string]bool, len(pg.Entities))
		for _, e := range pg.Entities {
			switch {
			case e.Player == "":
				errs = append(errs, fmt.Errorf("group %s: entity without player id", label))
			case seen[e.Player]:
				errs = append(errs, fmt.Errorf("group %s: %s listed twice", label, e.Player))
			}
			seen[e.Player] = true
			if e.Volume != nil && !validVolume(*e.Volume) {
				errs = append(errs, fmt.Errorf("group %s: %s volume %d out of range 0-100", label, e.Player, *e.Volume))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func validVolume(v int) bool {
	return v >= 0 && v <= 100
}
