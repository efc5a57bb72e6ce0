package grouping

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/hub"
	"github.com/friendsincode/speakergroups/internal/hub/hubtest"
	"github.com/friendsincode/speakergroups/internal/models"
)

func intPtr(v int) *int { return &v }

func group(name string, ids ...string) models.PredefinedGroup {
	pg := models.PredefinedGroup{Name: name}
	for _, id := range ids {
		pg.Entities = append(pg.Entities, models.GroupEntity{Player: id})
	}
	return pg
}

// livingRoomSnapshot has S1 standalone and S2, S3, S4 joined and idle.
func livingRoomSnapshot() models.Snapshot {
	return models.Snapshot{Players: []models.MediaPlayer{
		{ID: "s1", State: models.StateIdle},
		{ID: "s2", State: models.StateIdle, Members: []string{"s3", "s4"}},
		{ID: "s3", State: models.StateIdle, Members: []string{"s2", "s4"}},
		{ID: "s4", State: models.StateIdle, Members: []string{"s2", "s3"}},
	}}
}

// orderedRecorder renders each hub call into a shared log so announcements
// and calls can be checked in one sequence.
type orderedRecorder struct {
	log *[]string
}

func (o *orderedRecorder) CallService(_ context.Context, service string, data hub.Data) error {
	line := fmt.Sprintf("%s %v", service, data["entity_id"])
	switch service {
	case control.ServiceJoin:
		line += fmt.Sprintf(" %v", data["group_members"])
	case control.ServiceVolumeSet:
		line += fmt.Sprintf(" %v", data["volume_level"])
	case control.ServiceSelectSource:
		line += fmt.Sprintf(" %v", data["source"])
	}
	*o.log = append(*o.log, line)
	return nil
}

func TestApplyEndToEnd(t *testing.T) {
	var order []string
	rec := &orderedRecorder{log: &order}
	announcer := AnnouncerFunc(func(id string) { order = append(order, "announce "+id) })
	r := NewReconciler(control.NewService(rec, zerolog.Nop()), announcer, nil, nil, zerolog.Nop())

	pg := group("living room", "s1", "s2", "s3")
	pg.Volume = intPtr(30)
	pg.Media = "radio1"

	res, err := r.Apply(context.Background(), pg, livingRoomSnapshot())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []string{
		"unjoin [s4]",
		"announce s1",
		"join s1 [s2 s3]",
		"volume_set s1 0.3",
		"volume_set s2 0.3",
		"volume_set s3 0.3",
		"select_source s1 radio1",
	}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("calls:\n got  %q\n want %q", order, want)
	}
	if res.Status != models.ReconcileCompleted || res.Plan.Main != "s1" || res.Plan.Anchor == nil || res.Plan.Anchor.ID != "s2" {
		t.Errorf("result = %+v", res)
	}
}

func TestBuildPlanPrefersPlayingAnchor(t *testing.T) {
	snap := models.Snapshot{Players: []models.MediaPlayer{
		{ID: "a", Members: []string{"b"}},
		{ID: "b", Members: []string{"a"}},
		{ID: "c", State: models.StatePlaying, Members: []string{"d"}},
		{ID: "d", Members: []string{"c"}},
	}}

	plan, err := BuildPlan(group("mix", "b", "c"), snap)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Anchor == nil || plan.Anchor.ID != "c" {
		t.Fatalf("anchor = %+v, want playing group c", plan.Anchor)
	}
	// The playing anchor keeps its stream, so it becomes the main player.
	if plan.Main != "c" {
		t.Errorf("main = %q, want c", plan.Main)
	}
	if got := plan.Steps[0]; got.Kind != StepUnjoin || !reflect.DeepEqual(got.EntityIDs, []string{"d"}) {
		t.Errorf("first step = %v", got)
	}
	if got := plan.Steps[2]; got.Kind != StepJoin || got.EntityID != "c" || !reflect.DeepEqual(got.EntityIDs, []string{"b"}) {
		t.Errorf("join step = %v", got)
	}
}

func TestBuildPlanWithoutAnchor(t *testing.T) {
	snap := models.Snapshot{Players: []models.MediaPlayer{{ID: "a"}, {ID: "b"}}}

	plan, err := BuildPlan(group("pair", "a", "b"), snap)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []StepKind
	for _, s := range plan.Steps {
		kinds = append(kinds, s.Kind)
	}
	if want := []StepKind{StepAnnounce, StepJoin}; !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if plan.Anchor != nil {
		t.Errorf("anchor = %+v, want none", plan.Anchor)
	}
}

func TestBuildPlanOrdersVolumesThenUnmutes(t *testing.T) {
	pg := group("kitchen", "a", "b")
	pg.Entities[1].Volume = intPtr(0)
	pg.UnmuteWhenGrouped = true

	plan, err := BuildPlan(pg, models.Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range plan.Steps {
		got = append(got, s.String())
	}
	want := []string{
		"announce a",
		"join a <- [b]",
		"set_volume b 0",
		"set_mute a",
		"set_mute b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("steps:\n got  %q\n want %q", got, want)
	}
}

func TestBuildPlanEmptyGroup(t *testing.T) {
	if _, err := BuildPlan(models.PredefinedGroup{Name: "none"}, models.Snapshot{}); !errors.Is(err, ErrEmptyGroup) {
		t.Fatalf("err = %v, want ErrEmptyGroup", err)
	}
}

func TestApplyAlreadyConvergedSkipsUnjoin(t *testing.T) {
	snap := models.Snapshot{Players: []models.MediaPlayer{
		{ID: "a", State: models.StatePlaying, Members: []string{"b"}},
		{ID: "b", Members: []string{"a"}},
	}}
	rec := &hubtest.Recorder{}
	r := NewReconciler(control.NewService(rec, zerolog.Nop()), nil, nil, nil, zerolog.Nop())

	res, err := r.Apply(context.Background(), group("pair", "a", "b"), snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps[0].Step.Kind != StepUnjoin || res.Steps[0].Outcome != OutcomeNoop {
		t.Errorf("unjoin step = %+v", res.Steps[0])
	}
	if got := rec.Services(); !reflect.DeepEqual(got, []string{control.ServiceJoin}) {
		t.Fatalf("services = %v, want only join", got)
	}
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	rec := &hubtest.Recorder{FailOn: control.ServiceJoin}
	bus := events.NewBus()
	var finished events.Payload
	sub := bus.Subscribe(events.EventReconcileFinished, func(p events.Payload) { finished = p })
	defer sub.Close()

	r := NewReconciler(control.NewService(rec, zerolog.Nop()), nil, nil, bus, zerolog.Nop())
	pg := group("living room", "s1", "s2", "s3")
	pg.Volume = intPtr(30)

	res, err := r.Apply(context.Background(), pg, livingRoomSnapshot())
	if !errors.Is(err, hubtest.ErrInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	var outcomes []Outcome
	for _, s := range res.Steps {
		outcomes = append(outcomes, s.Outcome)
	}
	want := []Outcome{OutcomeOK, OutcomeNoop, OutcomeFailed, OutcomeSkipped, OutcomeSkipped, OutcomeSkipped}
	if !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	// unjoin went through and is not rolled back.
	if got := rec.Services(); !reflect.DeepEqual(got, []string{control.ServiceUnjoin, control.ServiceJoin}) {
		t.Errorf("services = %v", got)
	}
	if res.Status != models.ReconcileFailed || finished.String("status") != "failed" {
		t.Errorf("status = %s, finished event = %v", res.Status, finished)
	}
}

func TestApplyRecordsHistory(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ReconcileRun{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	history := NewHistoryStore(db)

	rec := &hubtest.Recorder{}
	r := NewReconciler(control.NewService(rec, zerolog.Nop()), nil, history, nil, zerolog.Nop())
	res, err := r.Apply(context.Background(), group("pair", "a", "b"), models.Snapshot{})
	if err != nil {
		t.Fatal(err)
	}

	runs, err := history.Recent(context.Background(), "pair", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != res.RunID || runs[0].MainID != "a" || runs[0].Status != models.ReconcileCompleted {
		t.Fatalf("runs = %+v", runs)
	}
	if len(runs[0].Steps) != 2 || runs[0].Steps[1].Kind != "join" {
		t.Errorf("steps = %+v", runs[0].Steps)
	}

	if other, _ := history.Recent(context.Background(), "other", 10); len(other) != 0 {
		t.Errorf("filter by group returned %d runs", len(other))
	}
}

func mp(name string) string { return hub.Domain + "." + name }

// hubState builds a media_player state the way the hub reports it, with
// group lists coordinator first.
func hubState(id string, state models.PlaybackState, group ...string) hub.State {
	attrs := map[string]any{}
	if len(group) > 0 {
		members := make([]any, len(group))
		for i, m := range group {
			members[i] = m
		}
		attrs["group_members"] = members
	}
	return hub.State{EntityID: id, State: string(state), Attributes: attrs}
}

func joinStep(t *testing.T, plan Plan) Step {
	t.Helper()
	for _, s := range plan.Steps {
		if s.Kind == StepJoin {
			return s
		}
	}
	t.Fatalf("plan has no join step: %+v", plan.Steps)
	return Step{}
}

func TestApplyKeepsHubCoordinatorAsMain(t *testing.T) {
	// s2 is listed first but s3 leads the playing group.
	snap := hub.SnapshotFromStates([]hub.State{
		hubState(mp("s2"), models.StatePlaying, mp("s3"), mp("s2")),
		hubState(mp("s3"), models.StatePlaying, mp("s3"), mp("s2")),
	})
	rec := &hubtest.Recorder{}
	var announced []string
	announcer := AnnouncerFunc(func(id string) { announced = append(announced, id) })
	r := NewReconciler(control.NewService(rec, zerolog.Nop()), announcer, nil, nil, zerolog.Nop())

	res, err := r.Apply(context.Background(), group("pair", mp("s2"), mp("s3")), snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.Plan.Anchor == nil || res.Plan.Anchor.ID != mp("s3") || res.Plan.Main != mp("s3") {
		t.Fatalf("anchor = %+v, main = %q, want coordinator s3", res.Plan.Anchor, res.Plan.Main)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Service != control.ServiceJoin {
		t.Fatalf("calls = %v, want a single join", calls)
	}
	if calls[0].Data["entity_id"] != mp("s3") || !reflect.DeepEqual(calls[0].Data["group_members"], []string{mp("s2")}) {
		t.Errorf("join = %v", calls[0])
	}
	if !reflect.DeepEqual(announced, []string{mp("s3")}) {
		t.Errorf("announced = %v", announced)
	}
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	all := []string{mp("s1"), mp("s2"), mp("s3"), mp("s4")}
	before := hub.SnapshotFromStates([]hub.State{
		hubState(all[0], models.StateIdle),
		hubState(all[1], models.StateIdle, all[1], all[2], all[3]),
		hubState(all[2], models.StateIdle, all[1], all[2], all[3]),
		hubState(all[3], models.StateIdle, all[1], all[2], all[3]),
	})
	pg := group("living room", all[2], all[0], all[1])
	pg.Media = "radio1"

	rec := &hubtest.Recorder{}
	r := NewReconciler(control.NewService(rec, zerolog.Nop()), nil, nil, nil, zerolog.Nop())

	first, err := r.Apply(context.Background(), pg, before)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	join := joinStep(t, first.Plan)
	if first.Plan.Main != all[2] || join.EntityID != all[2] {
		t.Fatalf("first main = %q, join = %v", first.Plan.Main, join)
	}

	// The hub now reports the joined group under the main player, which plays
	// the selected source. Snapshot order no longer starts with the main.
	joined := append([]string{join.EntityID}, join.EntityIDs...)
	after := hub.SnapshotFromStates([]hub.State{
		hubState(all[0], models.StatePlaying, joined...),
		hubState(all[1], models.StatePlaying, joined...),
		hubState(all[2], models.StatePlaying, joined...),
		hubState(all[3], models.StateIdle),
	})

	rec.Reset()
	second, err := r.Apply(context.Background(), pg, after)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.Steps[0].Step.Kind != StepUnjoin || second.Steps[0].Outcome != OutcomeNoop {
		t.Errorf("second unjoin = %+v", second.Steps[0])
	}
	again := joinStep(t, second.Plan)
	if second.Plan.Main != first.Plan.Main || again.EntityID != join.EntityID || !reflect.DeepEqual(again.EntityIDs, join.EntityIDs) {
		t.Fatalf("second join = %v, want %v", again, join)
	}
	if got := rec.Services(); !reflect.DeepEqual(got, []string{control.ServiceJoin, control.ServiceSelectSource}) {
		t.Errorf("second services = %v", got)
	}
}
