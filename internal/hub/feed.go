/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/speakergroups/internal/models"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

// Sink receives snapshot updates from the feed.
type Sink interface {
	Replace(snap models.Snapshot)
	Apply(player models.MediaPlayer)
	Remove(entityID string)
}

// ErrAuthInvalid is returned when the hub refuses the feed's token.
var ErrAuthInvalid = errors.New("hub websocket auth rejected")

const subscribeID = 1

type feedMessage struct {
	ID          int        `json:"id,omitempty"`
	Type        string     `json:"type"`
	AccessToken string     `json:"access_token,omitempty"`
	EventType   string     `json:"event_type,omitempty"`
	Success     *bool      `json:"success,omitempty"`
	Message     string     `json:"message,omitempty"`
	Event       *feedEvent `json:"event,omitempty"`
}

type feedEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string `json:"entity_id"`
		NewState *State `json:"new_state"`
	} `json:"data"`
}

// Feed keeps a Sink current by following the hub's state_changed stream.
// After every (re)connect it reloads the full state list so no update
// missed while disconnected survives.
type Feed struct {
	client     *Client
	sink       Sink
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewFeed creates a feed that reads from client and writes to sink.
func NewFeed(client *Client, sink Sink, logger zerolog.Logger) *Feed {
	return &Feed{
		client:     client,
		sink:       sink,
		logger:     logger.With().Str("component", "hub_feed").Logger(),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run follows the stream until ctx is cancelled, reconnecting with
// exponential backoff. It returns early only when auth is rejected.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.minBackoff
	for {
		connected, err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthInvalid) {
			return err
		}
		if connected {
			backoff = f.minBackoff
		}

		telemetry.FeedReconnectsTotal.Inc()
		f.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("hub feed disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

// session runs one connection. connected reports whether the subscription
// was established before the session ended.
func (f *Feed) session(ctx context.Context) (connected bool, err error) {
	url := websocketURL(f.client.BaseURL())
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")
	conn.SetReadLimit(8 << 20)

	if err := f.handshake(ctx, conn); err != nil {
		return false, err
	}

	snap, err := f.client.States(ctx)
	if err != nil {
		return true, fmt.Errorf("initial states: %w", err)
	}
	f.sink.Replace(snap)
	f.logger.Info().Int("players", len(snap.Players)).Msg("hub feed connected")

	for {
		var msg feedMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if msg.Type != "event" || msg.Event == nil || msg.Event.EventType != "state_changed" {
			continue
		}
		f.handle(msg.Event)
	}
}

func (f *Feed) handshake(ctx context.Context, conn *ws.Conn) error {
	var msg feedMessage
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("unexpected greeting %q", msg.Type)
	}

	if err := wsjson.Write(ctx, conn, feedMessage{Type: "auth", AccessToken: f.client.token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuthInvalid, msg.Message)
	default:
		return fmt.Errorf("unexpected auth reply %q", msg.Type)
	}

	sub := feedMessage{ID: subscribeID, Type: "subscribe_events", EventType: "state_changed"}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read subscribe result: %w", err)
		}
		if msg.Type == "result" && msg.ID == subscribeID {
			if msg.Success == nil || !*msg.Success {
				return fmt.Errorf("subscribe rejected: %s", msg.Message)
			}
			return nil
		}
	}
}

func (f *Feed) handle(ev *feedEvent) {
	id := ev.Data.EntityID
	if !strings.HasPrefix(id, Domain+".") {
		return
	}
	if ev.Data.NewState == nil {
		f.sink.Remove(id)
		return
	}
	if p, ok := ev.Data.NewState.Player(); ok {
		f.sink.Apply(p)
	}
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/websocket"
}
