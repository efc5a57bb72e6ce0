package activeplayer

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
)

func TestLateFragmentConverges(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())
	defer coord.Close()

	a := coord.Mount("living_room", nil)
	defer a.Unmount()
	a.Click()

	b := coord.Mount("kitchen", nil)
	defer b.Unmount()

	if got := b.Active(); got != "living_room" {
		t.Fatalf("late fragment active = %q, want living_room", got)
	}
	if b.IsActive() || !a.IsActive() {
		t.Fatalf("IsActive: a=%v b=%v", a.IsActive(), b.IsActive())
	}
}

func TestHandshakeAcrossCoordinators(t *testing.T) {
	// Two coordinators on one broker stand in for two dashboard instances.
	bus := events.NewBus()
	first := NewCoordinator(bus, zerolog.Nop())
	defer first.Close()

	a := first.Mount("living_room", nil)
	defer a.Unmount()
	first.Select("living_room", SourceUser)

	second := NewCoordinator(bus, zerolog.Nop())
	defer second.Close()
	if second.Get() != "" {
		t.Fatalf("fresh coordinator already holds %q", second.Get())
	}

	b := second.Mount("kitchen", nil)
	defer b.Unmount()

	if got := second.Get(); got != "living_room" {
		t.Fatalf("second coordinator = %q, want living_room", got)
	}
	if got := b.Active(); got != "living_room" {
		t.Fatalf("fragment active = %q, want living_room", got)
	}
}

func TestReannounceDoesNotRenotify(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())
	defer coord.Close()

	var seen []string
	sub := coord.Subscribe(func(id string) { seen = append(seen, id) })
	defer sub.Close()

	f := coord.Mount("den", nil)
	defer f.Unmount()

	coord.Select("den", SourceUser)
	coord.Select("den", SourceUser)
	f.Render()
	coord.Request()

	if len(seen) != 1 || seen[0] != "den" {
		t.Fatalf("listener calls = %q, want one den", seen)
	}

	coord.Select("kitchen", SourceUser)
	if len(seen) != 2 || seen[1] != "kitchen" {
		t.Fatalf("listener calls = %q", seen)
	}
	if f.IsActive() {
		t.Error("den still believes it is active")
	}
}

func TestMountWithDeepLink(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())
	defer coord.Close()

	addr, err := ParseURLAddress("http://dash.local/#kitchen")
	if err != nil {
		t.Fatal(err)
	}

	den := coord.Mount("den", addr)
	defer den.Unmount()
	if coord.Get() != "" {
		t.Fatalf("deep link to another tile selected %q", coord.Get())
	}

	kitchen := coord.Mount("kitchen", addr)
	defer kitchen.Unmount()
	if coord.Get() != "kitchen" || !kitchen.IsActive() || den.Active() != "kitchen" {
		t.Fatalf("coord=%q kitchen active=%v den sees %q", coord.Get(), kitchen.IsActive(), den.Active())
	}
}

func TestClickWritesAddress(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())
	defer coord.Close()

	addr, err := ParseURLAddress("http://dash.local/")
	if err != nil {
		t.Fatal(err)
	}
	f := coord.Mount("media_player.kitchen", addr)
	defer f.Unmount()

	f.Click()

	if got := addr.String(); got != "http://dash.local/#media_player.kitchen" {
		t.Fatalf("address = %q", got)
	}
	if coord.Get() != "media_player.kitchen" {
		t.Fatalf("active = %q", coord.Get())
	}

	// Clicking the active tile again changes nothing.
	addr.SetSelected("")
	f.Click()
	if addr.Selected() != "" {
		t.Fatal("second click rewrote the address")
	}
}

func TestUnmountReleasesSubscriptions(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())

	f := coord.Mount("den", nil)
	if n := bus.SubscriberCount(events.EventActivePlayerChanged); n != 2 {
		t.Fatalf("changed subscribers = %d, want 2", n)
	}

	f.Unmount()
	f.Unmount()
	coord.Select("kitchen", SourceUser)

	if f.Active() != "" {
		t.Fatalf("unmounted fragment still updated: %q", f.Active())
	}
	if n := bus.SubscriberCount(events.EventActivePlayerRequested); n != 1 {
		t.Fatalf("requested subscribers = %d, want 1", n)
	}

	coord.Close()
	if n := bus.SubscriberCount(events.EventActivePlayerChanged); n != 0 {
		t.Fatalf("changed subscribers after close = %d", n)
	}
}

func TestSelectFromWritesAddress(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())
	defer coord.Close()

	addr, err := ParseURLAddress("http://dash.local/")
	if err != nil {
		t.Fatal(err)
	}
	coord.SelectFrom(addr, "media_player.den")
	if got := addr.String(); got != "http://dash.local/#media_player.den" {
		t.Fatalf("address = %q", got)
	}

	// Non-user selections leave the address alone.
	coord.Select("media_player.kitchen", SourceDeepLink)
	coord.Announce("media_player.patio")
	if got := addr.Selected(); got != "media_player.den" {
		t.Fatalf("address rewritten to %q", got)
	}

	coord.SelectFrom(nil, "media_player.kitchen")
	if coord.Get() != "media_player.kitchen" {
		t.Fatalf("active = %q", coord.Get())
	}
}

func TestAnnouncementSources(t *testing.T) {
	bus := events.NewBus()
	coord := NewCoordinator(bus, zerolog.Nop())
	defer coord.Close()

	var sources []string
	sub := bus.Subscribe(events.EventActivePlayerChanged, func(p events.Payload) {
		sources = append(sources, p.String("source"))
	})
	defer sub.Close()

	f := coord.Mount("den", nil)
	defer f.Unmount()
	f.Click()
	f.Render()
	sources = nil

	coord.Request()

	// The coordinator and the active fragment both answer the request.
	for _, s := range sources {
		if s != string(SourceReply) {
			t.Fatalf("reply sources = %q", sources)
		}
	}
	if len(sources) != 2 {
		t.Fatalf("replies = %d, want 2", len(sources))
	}

	sources = nil
	f.Render()
	if len(sources) != 1 || sources[0] != string(SourceRender) {
		t.Fatalf("render sources = %q", sources)
	}
}
