/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hub talks to the home-automation hub that owns the speakers.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/speakergroups/internal/models"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

// Domain is the hub service domain every call targets.
const Domain = "media_player"

// Data is the JSON body of a service call.
type Data map[string]any

// Caller issues media_player service calls. The hub applies them
// asynchronously; a nil error only means the call was accepted.
type Caller interface {
	CallService(ctx context.Context, service string, data Data) error
}

// Error is returned when the hub rejects a service call.
type Error struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("hub %s.%s: status %d: %s", Domain, e.Service, e.StatusCode, e.Body)
}

// ErrUnauthorized is wrapped by Error values caused by a bad token.
var ErrUnauthorized = errors.New("hub rejected access token")

// Unwrap lets errors.Is match ErrUnauthorized for 401 responses.
func (e *Error) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client is the hub REST client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a client for the hub at baseURL (e.g. http://hub:8123).
func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: telemetry.HTTPTransport(nil),
		},
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// BaseURL returns the configured hub address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CallService posts data to /api/services/media_player/{service}.
func (c *Client) CallService(ctx context.Context, service string, data Data) error {
	ctx, span := telemetry.StartSpan(ctx, "hub.call_service",
		attribute.String("hub.service", service))
	defer span.End()

	start := time.Now()
	err := c.post(ctx, "/api/services/"+Domain+"/"+service, data, service)
	telemetry.HubCallDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
		telemetry.RecordError(span, err)
		c.logger.Warn().Err(err).Str("service", service).Interface("data", data).Msg("hub call failed")
	} else {
		c.logger.Debug().Str("service", service).Interface("data", data).Msg("hub call accepted")
	}
	telemetry.HubCallsTotal.WithLabelValues(service, outcome).Inc()
	return err
}

func (c *Client) post(ctx context.Context, path string, data Data, service string) error {
	if data == nil {
		data = Data{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// State is one entity as served by the hub's state API.
type State struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// States fetches every entity and returns the media players as a snapshot,
// in the order the hub lists them.
func (c *Client) States(ctx context.Context) (models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/states", nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.Snapshot{}, &Error{Service: "states", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var states []State
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode states: %w", err)
	}
	return SnapshotFromStates(states), nil
}

// SnapshotFromStates keeps the media_player entities of states.
func SnapshotFromStates(states []State) models.Snapshot {
	snap := models.Snapshot{Players: make([]models.MediaPlayer, 0, len(states))}
	for _, st := range states {
		if p, ok := st.Player(); ok {
			snap.Players = append(snap.Players, p)
		}
	}
	return snap
}

// Player converts a hub state into a MediaPlayer. ok is false for entities
// outside the media_player domain.
func (s State) Player() (models.MediaPlayer, bool) {
	if !strings.HasPrefix(s.EntityID, Domain+".") {
		return models.MediaPlayer{}, false
	}

	attrs := s.Attributes
	p := models.MediaPlayer{
		ID:       s.EntityID,
		State:    models.PlaybackState(s.State),
		RoomName: stringAttr(attrs, "friendly_name"),
		Attributes: models.Attributes{
			Shuffle:     boolAttr(attrs, "shuffle"),
			Repeat:      models.RepeatMode(stringAttr(attrs, "repeat")),
			Muted:       boolAttr(attrs, "is_volume_muted"),
			Icon:        stringAttr(attrs, "icon"),
			MediaTitle:  stringAttr(attrs, "media_title"),
			MediaArtist: stringAttr(attrs, "media_artist"),
			Source:      stringAttr(attrs, "source"),
			SourceList:  stringsAttr(attrs, "source_list"),
		},
	}
	if p.RoomName == "" {
		p.RoomName = strings.TrimPrefix(s.EntityID, Domain+".")
	}
	if v, ok := attrs["volume_level"].(float64); ok {
		p.Attributes.Volume = int(math.Round(v * 100))
	}
	// group_members lists the coordinator first and includes the entity
	// itself; Members holds only the others.
	group := stringsAttr(attrs, "group_members")
	for _, m := range group {
		if m != s.EntityID {
			p.Members = append(p.Members, m)
		}
	}
	if len(p.Members) > 0 {
		p.Coordinator = group[0]
	}
	return p, true
}

func stringAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func boolAttr(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}

func stringsAttr(attrs map[string]any, key string) []string {
	raw, ok := attrs[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
