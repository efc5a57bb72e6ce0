package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/speakergroups/internal/models"
)

type sinkRecorder struct {
	mu       sync.Mutex
	replaced []models.Snapshot
	applied  []models.MediaPlayer
	removed  []string
	changed  chan struct{}
}

func (s *sinkRecorder) Replace(snap models.Snapshot) {
	s.mu.Lock()
	s.replaced = append(s.replaced, snap)
	s.mu.Unlock()
}

func (s *sinkRecorder) Apply(p models.MediaPlayer) {
	s.mu.Lock()
	s.applied = append(s.applied, p)
	s.mu.Unlock()
	s.changed <- struct{}{}
}

func (s *sinkRecorder) Remove(id string) {
	s.mu.Lock()
	s.removed = append(s.removed, id)
	s.mu.Unlock()
	s.changed <- struct{}{}
}

// fakeHub speaks just enough of the hub websocket protocol to drive a Feed.
func fakeHub(t *testing.T, token string, events []map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/states", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"entity_id":"media_player.den","state":"idle","attributes":{}}]`))
	})
	mux.HandleFunc("/api/websocket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(ws.StatusNormalClosure, "")
		ctx := r.Context()

		_ = wsjson.Write(ctx, conn, map[string]any{"type": "auth_required"})
		var auth map[string]any
		if err := wsjson.Read(ctx, conn, &auth); err != nil {
			return
		}
		if auth["access_token"] != token {
			_ = wsjson.Write(ctx, conn, map[string]any{"type": "auth_invalid", "message": "bad token"})
			return
		}
		_ = wsjson.Write(ctx, conn, map[string]any{"type": "auth_ok"})

		var sub map[string]any
		if err := wsjson.Read(ctx, conn, &sub); err != nil || sub["event_type"] != "state_changed" {
			return
		}
		_ = wsjson.Write(ctx, conn, map[string]any{"id": 1, "type": "result", "success": true})

		for _, ev := range events {
			_ = wsjson.Write(ctx, conn, map[string]any{"id": 1, "type": "event", "event": ev})
		}
		// Block until the client goes away.
		_, _, _ = conn.Read(ctx)
	})
	return httptest.NewServer(mux)
}

func stateChanged(entityID string, newState map[string]any) map[string]any {
	return map[string]any{
		"event_type": "state_changed",
		"data":       map[string]any{"entity_id": entityID, "new_state": newState},
	}
}

func TestFeedAppliesStateChanges(t *testing.T) {
	srv := fakeHub(t, "secret", []map[string]any{
		stateChanged("light.hall", map[string]any{"entity_id": "light.hall", "state": "on"}),
		stateChanged("media_player.den", map[string]any{
			"entity_id":  "media_player.den",
			"state":      "playing",
			"attributes": map[string]any{"volume_level": 0.5},
		}),
		stateChanged("media_player.garage", nil),
	})
	defer srv.Close()

	sink := &sinkRecorder{changed: make(chan struct{}, 4)}
	feed := NewFeed(NewClient(srv.URL, "secret", 0, zerolog.Nop()), sink, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-sink.changed:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for feed updates")
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.replaced) == 0 || len(sink.replaced[0].Players) != 1 {
		t.Fatalf("initial snapshot not loaded: %+v", sink.replaced)
	}
	if len(sink.applied) != 1 || sink.applied[0].ID != "media_player.den" || sink.applied[0].Attributes.Volume != 50 {
		t.Errorf("applied = %+v", sink.applied)
	}
	if len(sink.removed) != 1 || sink.removed[0] != "media_player.garage" {
		t.Errorf("removed = %v", sink.removed)
	}
}

func TestFeedStopsOnRejectedToken(t *testing.T) {
	srv := fakeHub(t, "secret", nil)
	defer srv.Close()

	sink := &sinkRecorder{changed: make(chan struct{}, 1)}
	feed := NewFeed(NewClient(srv.URL, "wrong", 0, zerolog.Nop()), sink, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := feed.Run(ctx); !errors.Is(err, ErrAuthInvalid) {
		t.Fatalf("Run = %v, want ErrAuthInvalid", err)
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := map[string]string{
		"http://hub:8123":     "ws://hub:8123/api/websocket",
		"https://hub.example": "wss://hub.example/api/websocket",
	}
	for in, want := range tests {
		if got := websocketURL(in); got != want {
			t.Errorf("websocketURL(%q) = %q, want %q", in, got, want)
		}
	}
}
