/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/speakergroups/internal/models"
)

// Dashboard command names accepted by Run.
const (
	CommandPlay         = "play"
	CommandPause        = "pause"
	CommandNext         = "next"
	CommandPrevious     = "previous"
	CommandShuffle      = "shuffle"
	CommandRepeat       = "repeat"
	CommandVolumeUp     = "volume_up"
	CommandVolumeDown   = "volume_down"
	CommandVolumeSet    = "volume_set"
	CommandMute         = "mute"
	CommandSelectSource = "select_source"
	CommandPlayMedia    = "play_media"
	CommandJoin         = "join"
	CommandUnjoin       = "unjoin"
)

// DefaultContentType is used by play_media when none is given.
const DefaultContentType = "music"

var (
	// ErrUnknownCommand is returned by Run for a name it does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument is returned when a command lacks a required argument.
	ErrMissingArgument = errors.New("missing argument")
)

// Args carries the optional arguments of a named command.
type Args struct {
	Level         *int     `json:"level,omitempty"`
	Muted         *bool    `json:"muted,omitempty"`
	UpdateMembers *bool    `json:"update_members,omitempty"` // nil fans out
	Source        string   `json:"source,omitempty"`
	ContentID     string   `json:"content_id,omitempty"`
	ContentType   string   `json:"content_type,omitempty"`
	Members       []string `json:"members,omitempty"`
}

// fanOut reports whether volume and mute commands reach the members too.
func (a Args) fanOut() bool {
	return a.UpdateMembers == nil || *a.UpdateMembers
}

// Commands lists every name Run accepts.
func Commands() []string {
	return []string{
		CommandPlay, CommandPause, CommandNext, CommandPrevious,
		CommandShuffle, CommandRepeat,
		CommandVolumeUp, CommandVolumeDown, CommandVolumeSet, CommandMute,
		CommandSelectSource, CommandPlayMedia, CommandJoin, CommandUnjoin,
	}
}

// Run executes the named command against p.
func (s *Service) Run(ctx context.Context, command string, p models.MediaPlayer, args Args) error {
	switch command {
	case CommandPlay:
		return s.Play(ctx, p)
	case CommandPause:
		return s.Pause(ctx, p)
	case CommandNext:
		return s.Next(ctx, p)
	case CommandPrevious:
		return s.Previous(ctx, p)
	case CommandShuffle:
		return s.ToggleShuffle(ctx, p)
	case CommandRepeat:
		return s.CycleRepeat(ctx, p)
	case CommandVolumeUp:
		return s.VolumeUp(ctx, p, args.fanOut())
	case CommandVolumeDown:
		return s.VolumeDown(ctx, p, args.fanOut())
	case CommandVolumeSet:
		if args.Level == nil {
			return fmt.Errorf("%w: level", ErrMissingArgument)
		}
		return s.SetVolume(ctx, p, *args.Level, args.fanOut())
	case CommandMute:
		if args.Muted != nil {
			return s.SetMute(ctx, p, *args.Muted, args.fanOut())
		}
		return s.ToggleMute(ctx, p, args.fanOut())
	case CommandSelectSource:
		if args.Source == "" {
			return fmt.Errorf("%w: source", ErrMissingArgument)
		}
		return s.SelectSource(ctx, p.ID, args.Source)
	case CommandPlayMedia:
		if args.ContentID == "" {
			return fmt.Errorf("%w: content_id", ErrMissingArgument)
		}
		contentType := args.ContentType
		if contentType == "" {
			contentType = DefaultContentType
		}
		return s.PlayMedia(ctx, p.ID, models.MediaItem{ContentID: args.ContentID, ContentType: contentType})
	case CommandJoin:
		return s.Join(ctx, p.ID, args.Members)
	case CommandUnjoin:
		return s.Unjoin(ctx, []string{p.ID})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}
