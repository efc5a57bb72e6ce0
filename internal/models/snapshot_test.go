package models

import (
	"reflect"
	"testing"
)

func TestSnapshotGroups(t *testing.T) {
	tests := []struct {
		name    string
		players []MediaPlayer
		want    []Group
	}{
		{
			name: "standalone players are not groups",
			players: []MediaPlayer{
				{ID: "a"},
				{ID: "b", State: StatePlaying},
			},
			want: []Group{},
		},
		{
			name: "symmetric membership",
			players: []MediaPlayer{
				{ID: "s1"},
				{ID: "s2", Members: []string{"s3", "s4"}},
				{ID: "s3", Members: []string{"s2", "s4"}},
				{ID: "s4", Members: []string{"s2", "s3"}},
			},
			want: []Group{{ID: "s2", EntityIDs: []string{"s2", "s3", "s4"}}},
		},
		{
			name: "one-sided membership still connects",
			players: []MediaPlayer{
				{ID: "kitchen"},
				{ID: "den", Members: []string{"kitchen"}, State: StatePlaying},
			},
			want: []Group{{ID: "kitchen", EntityIDs: []string{"kitchen", "den"}, Playing: true}},
		},
		{
			name: "two separate groups keep snapshot order",
			players: []MediaPlayer{
				{ID: "a", Members: []string{"b"}},
				{ID: "b", Members: []string{"a"}},
				{ID: "c", Members: []string{"d"}, State: StatePlaying},
				{ID: "d", Members: []string{"c"}},
			},
			want: []Group{
				{ID: "a", EntityIDs: []string{"a", "b"}},
				{ID: "c", EntityIDs: []string{"c", "d"}, Playing: true},
			},
		},
		{
			name: "reported coordinator leads the group",
			players: []MediaPlayer{
				{ID: "s2", State: StatePlaying, Members: []string{"s3"}, Coordinator: "s3"},
				{ID: "s3", State: StatePlaying, Members: []string{"s2"}, Coordinator: "s3"},
			},
			want: []Group{{ID: "s3", EntityIDs: []string{"s3", "s2"}, Playing: true}},
		},
		{
			name: "coordinator outside the component is ignored",
			players: []MediaPlayer{
				{ID: "a", Members: []string{"b"}, Coordinator: "z"},
				{ID: "b", Members: []string{"a"}},
			},
			want: []Group{{ID: "a", EntityIDs: []string{"a", "b"}}},
		},
		{
			name: "member missing from snapshot",
			players: []MediaPlayer{
				{ID: "a", Members: []string{"ghost"}},
			},
			want: []Group{{ID: "a", EntityIDs: []string{"a", "ghost"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Snapshot{Players: tt.players}.Groups()
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Groups() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSnapshotGroupOf(t *testing.T) {
	snap := Snapshot{Players: []MediaPlayer{
		{ID: "a", Members: []string{"b"}},
		{ID: "b", Members: []string{"a"}},
		{ID: "c"},
	}}

	g, ok := snap.GroupOf("b")
	if !ok || g.ID != "a" {
		t.Fatalf("GroupOf(b) = %+v, %v", g, ok)
	}
	if _, ok := snap.GroupOf("c"); ok {
		t.Fatal("standalone player should not have a group")
	}
}

func TestRepeatModeNext(t *testing.T) {
	mode := RepeatOff
	var visited []RepeatMode
	for i := 0; i < 3; i++ {
		mode = mode.Next()
		visited = append(visited, mode)
	}
	want := []RepeatMode{RepeatAll, RepeatOne, RepeatOff}
	if !reflect.DeepEqual(visited, want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}

	if got := RepeatMode("").Next(); got != RepeatAll {
		t.Fatalf("empty mode Next() = %s, want all", got)
	}
}

func TestPredefinedGroupVolumeFor(t *testing.T) {
	thirty, fifty := 30, 50
	pg := PredefinedGroup{
		Entities: []GroupEntity{{Player: "a", Volume: &fifty}, {Player: "b"}},
		Volume:   &thirty,
	}

	if v, ok := pg.VolumeFor(pg.Entities[0]); !ok || v != 50 {
		t.Fatalf("override volume = %d, %v", v, ok)
	}
	if v, ok := pg.VolumeFor(pg.Entities[1]); !ok || v != 30 {
		t.Fatalf("default volume = %d, %v", v, ok)
	}

	pg.Volume = nil
	if _, ok := pg.VolumeFor(pg.Entities[1]); ok {
		t.Fatal("expected no volume without override or default")
	}
}

func TestMediaPlayerCurrentTrack(t *testing.T) {
	tests := []struct {
		artist, title, want string
	}{
		{"Band", "Song", "Band - Song"},
		{"", "Song", "Song"},
		{"Band", "", "Band"},
		{"", "", ""},
	}
	for _, tt := range tests {
		p := MediaPlayer{Attributes: Attributes{MediaArtist: tt.artist, MediaTitle: tt.title}}
		if got := p.CurrentTrack(); got != tt.want {
			t.Errorf("CurrentTrack(%q, %q) = %q, want %q", tt.artist, tt.title, got, tt.want)
		}
	}
}
