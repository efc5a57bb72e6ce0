package store

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
)

func TestApplyKeepsOrderAndOldSnapshots(t *testing.T) {
	s := New(nil, zerolog.Nop())
	s.Replace(models.Snapshot{Players: []models.MediaPlayer{{ID: "a"}, {ID: "b"}}})
	before := s.Snapshot()

	s.Apply(models.MediaPlayer{ID: "a", State: models.StatePlaying})
	s.Apply(models.MediaPlayer{ID: "c"})

	after := s.Snapshot()
	if len(after.Players) != 3 || after.Players[0].ID != "a" || after.Players[2].ID != "c" {
		t.Fatalf("players = %+v", after.Players)
	}
	if !after.Players[0].IsPlaying() {
		t.Error("update not applied")
	}
	if before.Players[0].IsPlaying() || len(before.Players) != 2 {
		t.Error("earlier snapshot was modified")
	}
}

func TestPlayerUnknown(t *testing.T) {
	s := New(nil, zerolog.Nop())
	s.Replace(models.Snapshot{Players: []models.MediaPlayer{{ID: "a"}}})

	if _, err := s.Player("a"); err != nil {
		t.Fatalf("Player(a): %v", err)
	}
	if _, err := s.Player("zzz"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("Player(zzz) = %v, want ErrUnknownEntity", err)
	}
}

func TestRemovePublishesOnlyOnChange(t *testing.T) {
	bus := events.NewBus()
	var updates []string
	sub := bus.Subscribe(events.EventSnapshotUpdated, func(p events.Payload) {
		updates = append(updates, p.String("entity_id"))
	})
	defer sub.Close()

	s := New(bus, zerolog.Nop())
	s.Replace(models.Snapshot{Players: []models.MediaPlayer{{ID: "a"}}})
	s.Remove("ghost")
	s.Remove("a")

	if len(updates) != 2 || updates[1] != "a" {
		t.Fatalf("updates = %q", updates)
	}
	if n := len(s.Snapshot().Players); n != 0 {
		t.Fatalf("players left = %d", n)
	}
}
