/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "strings"

// PlaybackState mirrors the hub's media_player state string.
type PlaybackState string

const (
	StatePlaying     PlaybackState = "playing"
	StatePaused      PlaybackState = "paused"
	StateIdle        PlaybackState = "idle"
	StateOn          PlaybackState = "on"
	StateOff         PlaybackState = "off"
	StateBuffering   PlaybackState = "buffering"
	StateUnavailable PlaybackState = "unavailable"
)

// RepeatMode enumerates the hub's repeat settings.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// Next returns the mode a repeat button press moves to: all -> one -> off -> all.
// Unknown or empty modes behave like off.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatAll:
		return RepeatOne
	case RepeatOne:
		return RepeatOff
	default:
		return RepeatAll
	}
}

// Valid reports whether r is one of the three known modes.
func (r RepeatMode) Valid() bool {
	return r == RepeatOff || r == RepeatOne || r == RepeatAll
}

// Attributes is the fixed set of player attributes the dashboard reads.
type Attributes struct {
	Shuffle bool       `json:"shuffle"`
	Repeat  RepeatMode `json:"repeat"`
	Muted   bool       `json:"muted"`
	Volume  int        `json:"volume"` // 0-100
	Icon    string     `json:"icon,omitempty"`

	MediaTitle  string   `json:"media_title,omitempty"`
	MediaArtist string   `json:"media_artist,omitempty"`
	Source      string   `json:"source,omitempty"`
	SourceList  []string `json:"source_list,omitempty"`
}

// MediaPlayer is one speaker as last reported by the hub.
// Values are rebuilt on every state update and never mutated in place.
type MediaPlayer struct {
	ID         string        `json:"entity_id"`
	State      PlaybackState `json:"state"`
	RoomName   string        `json:"room_name"`
	Members    []string      `json:"members"`
	Attributes Attributes    `json:"attributes"`

	// Coordinator is the group leader the hub reports for this player.
	// Empty when the player is not grouped.
	Coordinator string `json:"coordinator,omitempty"`
}

// IsPlaying reports whether the player is audibly in use.
func (p MediaPlayer) IsPlaying() bool {
	return p.State == StatePlaying
}

// IsMuted reports the player's own mute flag. Members are not consulted.
func (p MediaPlayer) IsMuted() bool {
	return p.Attributes.Muted
}

// IsGrouped reports whether the player is joined with at least one other player.
func (p MediaPlayer) IsGrouped() bool {
	return len(p.Members) > 0
}

// CurrentTrack renders "artist - title", dropping the artist part when unknown.
func (p MediaPlayer) CurrentTrack() string {
	track := p.Attributes.MediaArtist + " - " + p.Attributes.MediaTitle
	track = strings.TrimPrefix(track, " - ")
	return strings.TrimSuffix(track, " - ")
}

// MediaItem identifies playable content for play_media.
type MediaItem struct {
	ContentID   string `json:"media_content_id"`
	ContentType string `json:"media_content_type"`
}
