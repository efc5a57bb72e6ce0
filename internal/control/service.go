/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package control translates dashboard commands into hub service calls.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/hub"
	"github.com/friendsincode/speakergroups/internal/models"
)

// Hub service names.
const (
	ServicePlay         = "media_play"
	ServicePause        = "media_pause"
	ServiceNext         = "media_next_track"
	ServicePrevious     = "media_previous_track"
	ServiceShuffleSet   = "shuffle_set"
	ServiceRepeatSet    = "repeat_set"
	ServiceVolumeUp     = "volume_up"
	ServiceVolumeDown   = "volume_down"
	ServiceVolumeSet    = "volume_set"
	ServiceVolumeMute   = "volume_mute"
	ServiceSelectSource = "select_source"
	ServicePlayMedia    = "play_media"
	ServiceJoin         = "join"
	ServiceUnjoin       = "unjoin"
)

var (
	// ErrInvalidVolume is returned for levels outside 0-100.
	ErrInvalidVolume = errors.New("volume must be between 0 and 100")
	// ErrNoMembers is returned when a join names no members.
	ErrNoMembers = errors.New("join requires at least one member")
)

// Service issues hub calls for one target player at a time. It never
// changes local state; the hub's state feed reports the outcome.
type Service struct {
	hub    hub.Caller
	logger zerolog.Logger
}

// NewService creates a command service on top of caller.
func NewService(caller hub.Caller, logger zerolog.Logger) *Service {
	return &Service{
		hub:    caller,
		logger: logger.With().Str("component", "control").Logger(),
	}
}

// Play resumes playback on the target only.
func (s *Service) Play(ctx context.Context, p models.MediaPlayer) error {
	return s.call(ctx, ServicePlay, hub.Data{"entity_id": p.ID})
}

// Pause pauses the target only.
func (s *Service) Pause(ctx context.Context, p models.MediaPlayer) error {
	return s.call(ctx, ServicePause, hub.Data{"entity_id": p.ID})
}

// Next skips to the next track.
func (s *Service) Next(ctx context.Context, p models.MediaPlayer) error {
	return s.call(ctx, ServiceNext, hub.Data{"entity_id": p.ID})
}

// Previous goes back one track.
func (s *Service) Previous(ctx context.Context, p models.MediaPlayer) error {
	return s.call(ctx, ServicePrevious, hub.Data{"entity_id": p.ID})
}

// ToggleShuffle flips the target's shuffle flag.
func (s *Service) ToggleShuffle(ctx context.Context, p models.MediaPlayer) error {
	return s.call(ctx, ServiceShuffleSet, hub.Data{
		"entity_id": p.ID,
		"shuffle":   !p.Attributes.Shuffle,
	})
}

// CycleRepeat advances the repeat mode: all, one, off, all.
func (s *Service) CycleRepeat(ctx context.Context, p models.MediaPlayer) error {
	return s.call(ctx, ServiceRepeatSet, hub.Data{
		"entity_id": p.ID,
		"repeat":    string(p.Attributes.Repeat.Next()),
	})
}

// VolumeUp steps the volume up on the target, and on its members when
// updateMembers is set.
func (s *Service) VolumeUp(ctx context.Context, p models.MediaPlayer, updateMembers bool) error {
	return s.fanOut(ctx, ServiceVolumeUp, p, updateMembers, nil)
}

// VolumeDown steps the volume down.
func (s *Service) VolumeDown(ctx context.Context, p models.MediaPlayer, updateMembers bool) error {
	return s.fanOut(ctx, ServiceVolumeDown, p, updateMembers, nil)
}

// SetVolume sets an absolute level in percent.
func (s *Service) SetVolume(ctx context.Context, p models.MediaPlayer, level int, updateMembers bool) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, level)
	}
	return s.fanOut(ctx, ServiceVolumeSet, p, updateMembers, hub.Data{
		"volume_level": float64(level) / 100,
	})
}

// ToggleMute flips the mute flag. Only the target's own flag is read; the
// toggled value is sent to every member as-is, so members whose flag
// differed from the target's end up matching it.
func (s *Service) ToggleMute(ctx context.Context, p models.MediaPlayer, updateMembers bool) error {
	return s.SetMute(ctx, p, !p.IsMuted(), updateMembers)
}

// SetMute sets the mute flag explicitly.
func (s *Service) SetMute(ctx context.Context, p models.MediaPlayer, muted bool, updateMembers bool) error {
	return s.fanOut(ctx, ServiceVolumeMute, p, updateMembers, hub.Data{
		"is_volume_muted": muted,
	})
}

// SelectSource switches the target's input source.
func (s *Service) SelectSource(ctx context.Context, entityID, source string) error {
	return s.call(ctx, ServiceSelectSource, hub.Data{"entity_id": entityID, "source": source})
}

// PlayMedia starts playback of item on the target.
func (s *Service) PlayMedia(ctx context.Context, entityID string, item models.MediaItem) error {
	return s.call(ctx, ServicePlayMedia, hub.Data{
		"entity_id":          entityID,
		"media_content_id":   item.ContentID,
		"media_content_type": item.ContentType,
	})
}

// Join groups members under main.
func (s *Service) Join(ctx context.Context, main string, members []string) error {
	if len(members) == 0 {
		return ErrNoMembers
	}
	return s.call(ctx, ServiceJoin, hub.Data{
		"entity_id":     main,
		"group_members": append([]string(nil), members...),
	})
}

// Unjoin removes ids from whatever group they are in. An empty list is a
// no-op and makes no hub call.
func (s *Service) Unjoin(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.call(ctx, ServiceUnjoin, hub.Data{"entity_id": append([]string(nil), ids...)})
}

// fanOut sends service to the target, then to each member in order when
// updateMembers is set. The first failure stops the chain; calls already
// made are not undone.
func (s *Service) fanOut(ctx context.Context, service string, p models.MediaPlayer, updateMembers bool, extra hub.Data) error {
	targets := []string{p.ID}
	if updateMembers {
		targets = append(targets, p.Members...)
	}
	for i, id := range targets {
		data := hub.Data{"entity_id": id}
		for k, v := range extra {
			data[k] = v
		}
		if err := s.call(ctx, service, data); err != nil {
			if i > 0 {
				s.logger.Warn().
					Str("service", service).
					Str("target", p.ID).
					Int("applied", i).
					Int("total", len(targets)).
					Msg("member fan-out stopped partway")
			}
			return err
		}
	}
	return nil
}

func (s *Service) call(ctx context.Context, service string, data hub.Data) error {
	if err := s.hub.CallService(ctx, service, data); err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	return nil
}
