/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package grouping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
	"github.com/friendsincode/speakergroups/internal/telemetry"
)

// Outcome is the result of one executed step.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeNoop    Outcome = "noop"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Announcer makes a player the dashboard's active player.
type Announcer interface {
	Announce(entityID string)
}

// AnnouncerFunc adapts a function to Announcer.
type AnnouncerFunc func(entityID string)

// Announce calls f.
func (f AnnouncerFunc) Announce(entityID string) { f(entityID) }

// HistoryRecorder persists finished runs.
type HistoryRecorder interface {
	Record(ctx context.Context, run *models.ReconcileRun) error
}

// StepResult pairs a planned step with what happened to it.
type StepResult struct {
	Step     Step          `json:"step"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result describes one reconciliation run.
type Result struct {
	RunID  string                 `json:"run_id"`
	Plan   Plan                   `json:"plan"`
	Steps  []StepResult           `json:"steps"`
	Status models.ReconcileStatus `json:"status"`
}

// Reconciler executes plans against the hub.
type Reconciler struct {
	control   *control.Service
	announcer Announcer
	history   HistoryRecorder
	bus       events.Broker
	logger    zerolog.Logger
}

// NewReconciler creates a reconciler. announcer, history and bus may be nil.
func NewReconciler(svc *control.Service, announcer Announcer, history HistoryRecorder, bus events.Broker, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		control:   svc,
		announcer: announcer,
		history:   history,
		bus:       bus,
		logger:    logger.With().Str("component", "grouping").Logger(),
	}
}

// Apply plans and runs pg against snap. Steps run one at a time; the first
// failure ends the run, later steps are reported skipped, and effects of
// earlier steps stay in place. The returned Result is non-nil whenever a
// plan could be built.
func (r *Reconciler) Apply(ctx context.Context, pg models.PredefinedGroup, snap models.Snapshot) (*Result, error) {
	plan, err := BuildPlan(pg, snap)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, plan)
}

// Run executes an already built plan.
func (r *Reconciler) Run(ctx context.Context, plan Plan) (*Result, error) {
	anchorID := ""
	if plan.Anchor != nil {
		anchorID = plan.Anchor.ID
	}

	ctx, span := telemetry.StartSpan(ctx, "grouping.reconcile",
		attribute.String("group.name", plan.Group.Name),
		attribute.String("group.main", plan.Main),
		attribute.String("group.anchor", anchorID),
		attribute.Int("group.steps", len(plan.Steps)),
	)
	defer span.End()

	res := &Result{
		RunID:  uuid.NewString(),
		Plan:   plan,
		Steps:  make([]StepResult, 0, len(plan.Steps)),
		Status: models.ReconcileCompleted,
	}
	logger := r.logger.With().Str("run_id", res.RunID).Str("group", plan.Group.Name).Logger()
	logger.Info().Str("anchor", anchorID).Str("main", plan.Main).Int("steps", len(plan.Steps)).Msg("applying predefined group")

	started := time.Now()
	var runErr error
	for i, step := range plan.Steps {
		if runErr != nil {
			res.Steps = append(res.Steps, StepResult{Step: step, Outcome: OutcomeSkipped})
			r.stepDone(res.RunID, step, OutcomeSkipped, nil)
			continue
		}

		stepStart := time.Now()
		outcome, err := r.execute(ctx, step)
		sr := StepResult{Step: step, Outcome: outcome, Err: err, Duration: time.Since(stepStart)}
		if err != nil {
			sr.Error = err.Error()
		}
		res.Steps = append(res.Steps, sr)
		r.stepDone(res.RunID, step, outcome, err)

		if err != nil {
			runErr = fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
			logger.Error().Err(err).Int("step", i+1).Str("kind", string(step.Kind)).Strs("entities", step.Entities()).Msg("reconcile step failed")
			continue
		}
		logger.Debug().Int("step", i+1).Str("step_desc", step.String()).Str("outcome", string(outcome)).Dur("took", sr.Duration).Msg("reconcile step done")
	}

	if runErr != nil {
		res.Status = models.ReconcileFailed
		telemetry.RecordError(span, runErr)
	}
	telemetry.ReconcileRunsTotal.WithLabelValues(string(res.Status)).Inc()
	r.record(ctx, res, anchorID, started, runErr)

	if r.bus != nil {
		payload := events.Payload{
			"run_id": res.RunID,
			"group":  plan.Group.Name,
			"main":   plan.Main,
			"status": string(res.Status),
		}
		if runErr != nil {
			payload["error"] = runErr.Error()
		}
		r.bus.Publish(events.EventReconcileFinished, payload)
	}

	if runErr != nil {
		return res, runErr
	}
	logger.Info().Dur("took", time.Since(started)).Msg("predefined group applied")
	return res, nil
}

func (r *Reconciler) execute(ctx context.Context, step Step) (Outcome, error) {
	if step.Noop() {
		return OutcomeNoop, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "grouping.step."+string(step.Kind),
		attribute.StringSlice("step.entities", step.Entities()))
	defer span.End()

	var err error
	switch step.Kind {
	case StepUnjoin:
		err = r.control.Unjoin(ctx, step.EntityIDs)
	case StepAnnounce:
		if r.announcer == nil {
			return OutcomeNoop, nil
		}
		r.announcer.Announce(step.EntityID)
	case StepJoin:
		err = r.control.Join(ctx, step.EntityID, step.EntityIDs)
	case StepSetVolume:
		err = r.control.SetVolume(ctx, models.MediaPlayer{ID: step.EntityID}, step.Volume, false)
	case StepSetMute:
		err = r.control.SetMute(ctx, models.MediaPlayer{ID: step.EntityID}, false, false)
	case StepSelectSource:
		err = r.control.SelectSource(ctx, step.EntityID, step.Source)
	default:
		err = fmt.Errorf("unknown step kind %q", step.Kind)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return OutcomeFailed, err
	}
	return OutcomeOK, nil
}

func (r *Reconciler) stepDone(runID string, step Step, outcome Outcome, err error) {
	telemetry.ReconcileStepsTotal.WithLabelValues(string(step.Kind), string(outcome)).Inc()
	if r.bus == nil {
		return
	}
	payload := events.Payload{
		"run_id":   runID,
		"kind":     string(step.Kind),
		"entities": step.Entities(),
		"outcome":  string(outcome),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	r.bus.Publish(events.EventReconcileStep, payload)
}

func (r *Reconciler) record(ctx context.Context, res *Result, anchorID string, started time.Time, runErr error) {
	if r.history == nil {
		return
	}
	run := &models.ReconcileRun{
		ID:         res.RunID,
		GroupName:  res.Plan.Group.Name,
		AnchorID:   anchorID,
		MainID:     res.Plan.Main,
		Status:     res.Status,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for _, sr := range res.Steps {
		rec := models.ReconcileStepRecord{
			Kind:       string(sr.Step.Kind),
			EntityIDs:  sr.Step.Entities(),
			Outcome:    string(sr.Outcome),
			DurationMS: sr.Duration.Milliseconds(),
		}
		if sr.Err != nil {
			rec.Error = sr.Err.Error()
		}
		run.Steps = append(run.Steps, rec)
	}
	if err := r.history.Record(ctx, run); err != nil {
		r.logger.Warn().Err(err).Str("run_id", res.RunID).Msg("failed to record reconcile run")
	}
}
