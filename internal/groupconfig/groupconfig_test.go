package groupconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
)

const sample = `
groups:
  - name: Downstairs
    volume: 30
    unmute_when_grouped: true
    media: radio1
    entities:
      - media_player.living_room
      - player: media_player.kitchen
        volume: 45
  - name: Everywhere
    entities: [media_player.den, media_player.garage]
`

func TestParse(t *testing.T) {
	groups, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	down := groups[0]
	if down.Main() != "media_player.living_room" || down.Media != "radio1" || !down.UnmuteWhenGrouped {
		t.Errorf("downstairs = %+v", down)
	}
	if v, ok := down.VolumeFor(down.Entities[0]); !ok || v != 30 {
		t.Errorf("living room volume = %d, %v", v, ok)
	}
	if v, ok := down.VolumeFor(down.Entities[1]); !ok || v != 45 {
		t.Errorf("kitchen volume = %d, %v", v, ok)
	}
	if ids := groups[1].IDs(); len(ids) != 2 || ids[1] != "media_player.garage" {
		t.Errorf("everywhere ids = %v", ids)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing name", "groups: [{entities: [a]}]", "name is required"},
		{"no entities", "groups: [{name: x}]", "at least one entity"},
		{"duplicate entity", "groups: [{name: x, entities: [a, a]}]", "a listed twice"},
		{"group volume", "groups: [{name: x, volume: 101, entities: [a]}]", "volume 101 out of range"},
		{"entity volume", "groups: [{name: x, entities: [{player: a, volume: -1}]}]", "a volume -1 out of range"},
		{"duplicate group", "groups: [{name: x, entities: [a]}, {name: x, entities: [b]}]", "duplicate name"},
		{"not yaml", "groups: [", "invalid group config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryReloadKeepsGroupsOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	writeFile(t, path, sample)

	bus := events.NewBus()
	reloads := 0
	sub := bus.Subscribe(events.EventGroupsReloaded, func(events.Payload) { reloads++ })
	defer sub.Close()

	reg := NewRegistry(FileSource{Path: path}, bus, zerolog.Nop())
	if err := reg.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := reg.Get("Downstairs"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	writeFile(t, path, "groups: [{name: broken}]")
	if err := reg.Reload(context.Background()); err == nil {
		t.Fatal("broken document accepted")
	}
	if n := len(reg.List()); n != 2 {
		t.Fatalf("groups after failed reload = %d, want 2", n)
	}
	if _, err := reg.Get("nope"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("Get(nope) = %v", err)
	}
	if reloads != 1 {
		t.Fatalf("reload events = %d, want 1", reloads)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	writeFile(t, path, "groups: [{name: one, entities: [a]}]")

	reg := NewRegistry(FileSource{Path: path}, nil, zerolog.Nop())
	if err := reg.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, reg, 20*time.Millisecond) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "groups: [{name: one, entities: [a]}, {name: two, entities: [b]}]")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(reg.List()) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("groups = %d after edit, want 2", len(reg.List()))
}

func TestSplitS3URL(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		ok          bool
	}{
		{"s3://config/dashboard/groups.yaml", "config", "dashboard/groups.yaml", true},
		{"s3://config/", "", "", false},
		{"/etc/speakergroups/groups.yaml", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, ok := SplitS3URL(tt.in)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("SplitS3URL(%q) = %q, %q, %v", tt.in, bucket, key, ok)
		}
	}
}
