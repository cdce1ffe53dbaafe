package progress

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

// Reporter emits the lifecycle events of one run.
type Reporter struct {
	emitter Emitter
	clock   meeting.Clock
	runID   string
	mode    store.Mode
	started time.Time
}

// NewReporter binds a run to an emitter. A nil emitter yields a Reporter
// whose methods do nothing.
func NewReporter(emitter Emitter, clock meeting.Clock, runID string, mode store.Mode) *Reporter {
	return &Reporter{emitter: emitter, clock: clock, runID: runID, mode: mode}
}

// Start emits RUN_START.
func (r *Reporter) Start(ctx context.Context, in meeting.Input) {
	if r.emitter == nil {
		return
	}
	now := r.clock.Now()
	r.started = now
	r.emitter.Emit(ctx, Event{RunID: r.runID, TS: now, Stage: StageRunStart, Mode: r.mode, Input: in})
}

// Site emits SITE_DONE. Its signature matches pipeline.SiteFunc. A finished
// site is reported even if the run is being canceled.
func (r *Reporter) Site(ctx context.Context, result meeting.SiteResult, done, total int) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(context.WithoutCancel(ctx), Event{
		RunID: r.runID,
		TS:    r.clock.Now(),
		Stage: StageSiteDone,
		Mode:  r.mode,
		Site:  result,
		Done:  done,
		Total: total,
	})
}

// Finish emits RUN_DONE even when ctx is already canceled. The status is
// derived from err: nil is success, context cancellation is canceled,
// anything else is error.
func (r *Reporter) Finish(ctx context.Context, stats *meeting.Statistics, err error) {
	if r.emitter == nil {
		return
	}
	now := r.clock.Now()
	evt := Event{
		RunID:      r.runID,
		TS:         now,
		Stage:      StageRunDone,
		Mode:       r.mode,
		Status:     StatusFor(err),
		Statistics: stats,
	}
	if err != nil {
		evt.Note = err.Error()
	}
	if !r.started.IsZero() && now.After(r.started) {
		evt.Dur = now.Sub(r.started)
	}
	r.emitter.Emit(context.WithoutCancel(ctx), evt)
}

// StatusFor maps a run error to its terminal status.
func StatusFor(err error) store.RunStatus {
	switch {
	case err == nil:
		return store.RunSuccess
	case errors.Is(err, context.Canceled):
		return store.RunCanceled
	default:
		return store.RunError
	}
}
