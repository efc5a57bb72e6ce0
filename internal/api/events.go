/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/speakergroups/internal/activeplayer"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

// Client actions on the events websocket.
const (
	actionMount   = "mount"
	actionRender  = "render"
	actionClick   = "click"
	actionUnmount = "unmount"
	actionSelect  = "select"
	actionRequest = "request"
)

// wsMessage is a server push on the events websocket.
type wsMessage struct {
	Type      string         `json:"type"`
	EntityID  string         `json:"entity_id,omitempty"`
	Active    *bool          `json:"active,omitempty"`
	URL       string         `json:"url,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      events.Payload `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// wsCommand is a client message on the events websocket.
type wsCommand struct {
	Action   string `json:"action"`
	EntityID string `json:"entity_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

// pushedEvents are forwarded to every connected dashboard.
var pushedEvents = map[events.EventType]string{
	events.EventActivePlayerChanged: "active_player",
	events.EventSnapshotUpdated:     "snapshot",
	events.EventReconcileStep:       "reconcile_step",
	events.EventReconcileFinished:   "reconcile_finished",
	events.EventGroupsReloaded:      "groups_reloaded",
}

// eventSession is one dashboard connection and the tiles it has mounted.
// Every tile of a session shares the page's address.
type eventSession struct {
	api       *API
	out       chan wsMessage
	fragments map[string]*activeplayer.Fragment
	page      *activeplayer.URLAddress
	logger    zerolog.Logger
}

// handleEvents upgrades to a websocket that pushes active player and
// topology events, and lets the browser mount player tiles.
// ?player=<entity_id> selects that player once on connect.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx := r.Context()
	s := &eventSession{
		api:       a,
		out:       make(chan wsMessage, 64),
		fragments: make(map[string]*activeplayer.Fragment),
		logger:    a.logger.With().Str("remote", r.RemoteAddr).Logger(),
	}
	defer s.unmountAll()

	subs := make([]*events.Subscription, 0, len(pushedEvents))
	for eventType, name := range pushedEvents {
		name := name
		subs = append(subs, a.bus.Subscribe(eventType, func(p events.Payload) {
			s.push(wsMessage{Type: name, EntityID: p.String("entity_id"), Data: p})
		}))
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	if deepLink := r.URL.Query().Get("player"); deepLink != "" {
		if _, err := a.store.Player(deepLink); err != nil {
			s.push(wsMessage{Type: "error", EntityID: deepLink, Error: "unknown_entity"})
		} else {
			a.coordinator.Select(deepLink, activeplayer.SourceDeepLink)
		}
	}
	s.push(wsMessage{Type: "active_player", EntityID: a.coordinator.Get()})

	done := make(chan struct{})
	commandCh := make(chan wsCommand, 16)

	// Read commands from client
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ws.CloseStatus(err) != ws.StatusNormalClosure {
					s.logger.Debug().Err(err).Msg("websocket read error")
				}
				return
			}

			var cmd wsCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				s.logger.Warn().Err(err).Msg("invalid websocket message")
				continue
			}

			select {
			case commandCh <- cmd:
			default:
				s.logger.Warn().Msg("command channel full, dropping message")
			}
		}
	}()

	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-pingTicker.C:
			if err := s.write(ctx, conn, wsMessage{Type: "ping"}); err != nil {
				s.logger.Debug().Err(err).Msg("ping failed")
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}

		case msg := <-s.out:
			if err := s.write(ctx, conn, msg); err != nil {
				s.logger.Debug().Err(err).Msg("send failed")
				conn.Close(ws.StatusInternalError, "send failed")
				return
			}

		case cmd := <-commandCh:
			s.handle(cmd)
		}
	}
}

func (s *eventSession) write(ctx context.Context, conn *ws.Conn, msg wsMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// push queues msg without blocking the publisher. Bus handlers run on the
// publishing goroutine, so a slow browser must never stall them.
func (s *eventSession) push(msg wsMessage) {
	select {
	case s.out <- msg:
	default:
		s.logger.Warn().Str("type", msg.Type).Msg("event queue full, dropping message")
	}
}

func (s *eventSession) handle(cmd wsCommand) {
	coord := s.api.coordinator
	switch cmd.Action {
	case actionMount:
		if cmd.EntityID == "" {
			s.push(wsMessage{Type: "error", Error: "entity_id_required"})
			return
		}
		if _, mounted := s.fragments[cmd.EntityID]; mounted {
			return
		}
		if err := s.usePage(cmd.URL); err != nil {
			s.push(wsMessage{Type: "error", EntityID: cmd.EntityID, Error: "invalid_url"})
			return
		}
		f := coord.Mount(cmd.EntityID, s.page)
		s.fragments[cmd.EntityID] = f
		active := f.IsActive()
		s.push(wsMessage{Type: "mounted", EntityID: cmd.EntityID, Active: &active})

	case actionRender:
		if f, ok := s.fragments[cmd.EntityID]; ok {
			f.Render()
		}

	case actionClick:
		f, ok := s.fragments[cmd.EntityID]
		if !ok {
			s.push(wsMessage{Type: "error", EntityID: cmd.EntityID, Error: "not_mounted"})
			return
		}
		f.Click()
		s.push(wsMessage{Type: "address", EntityID: cmd.EntityID, URL: s.page.String()})

	case actionUnmount:
		if f, ok := s.fragments[cmd.EntityID]; ok {
			f.Unmount()
			delete(s.fragments, cmd.EntityID)
		}

	case actionSelect:
		if _, err := s.api.store.Player(cmd.EntityID); err != nil {
			s.push(wsMessage{Type: "error", EntityID: cmd.EntityID, Error: "unknown_entity"})
			return
		}
		if err := s.usePage(cmd.URL); err != nil {
			s.push(wsMessage{Type: "error", EntityID: cmd.EntityID, Error: "invalid_url"})
			return
		}
		coord.SelectFrom(s.page, cmd.EntityID)
		s.push(wsMessage{Type: "address", EntityID: cmd.EntityID, URL: s.page.String()})

	case actionRequest:
		coord.Request()

	default:
		s.push(wsMessage{Type: "error", Error: "unknown_action"})
	}
}

// usePage sets the session's address from the first URL a client sends.
// Later URLs are ignored; the page keeps the selections written so far.
func (s *eventSession) usePage(raw string) error {
	if s.page != nil {
		return nil
	}
	page, err := activeplayer.ParseURLAddress(raw)
	if err != nil {
		return err
	}
	s.page = page
	return nil
}

func (s *eventSession) unmountAll() {
	for id, f := range s.fragments {
		f.Unmount()
		delete(s.fragments, id)
	}
}
