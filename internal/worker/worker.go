// Package worker executes queued scrape runs and reports their progress.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/pipeline"
	"github.com/JakeFAU/meeting-crawler/internal/progress"
	"github.com/JakeFAU/meeting-crawler/internal/store"
)

const tracerName = "github.com/JakeFAU/meeting-crawler/internal/worker"

// Job is one queued run.
type Job struct {
	RunID string        `json:"run_id"`
	Mode  store.Mode    `json:"mode"`
	Input meeting.Input `json:"input"`
}

// Queue yields jobs to workers.
type Queue interface {
	Dequeue(ctx context.Context) (Job, error)
}

// Runner executes scrape runs.
type Runner interface {
	Run(ctx context.Context, in meeting.Input, onSite pipeline.SiteFunc) ([]meeting.SiteResult, error)
	RunUniversal(ctx context.Context, in meeting.Input, onSite pipeline.SiteFunc) (meeting.Report, error)
}

// Outcome is the result of one executed run.
type Outcome struct {
	Results []meeting.SiteResult
	// Statistics is set for universal runs that got past input validation.
	Statistics *meeting.Statistics
}

// Worker consumes queued jobs and executes them through the Runner.
type Worker struct {
	queue    Queue
	runner   Runner
	emitter  progress.Emitter
	clock    meeting.Clock
	registry *Registry
	logger   *zap.Logger
}

// New constructs a Worker. queue and registry may be nil when the worker is
// only used through Execute.
func New(
	queue Queue,
	runner Runner,
	emitter progress.Emitter,
	clock meeting.Clock,
	registry *Registry,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		runner:   runner,
		emitter:  emitter,
		clock:    clock,
		registry: registry,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// fails.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("queue dequeue stopped worker", zap.Error(err))
			}
			return
		}
		w.logger.Debug("dequeued run", zap.String("run_id", job.RunID))
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	runCtx, release, ok := w.registry.Acquire(ctx, job.RunID)
	if !ok {
		w.logger.Info("skipping canceled run", zap.String("run_id", job.RunID))
		return
	}
	defer release()

	if _, err := w.Execute(runCtx, job); err != nil {
		w.logger.Warn("run finished with error", zap.String("run_id", job.RunID), zap.Error(err))
		return
	}
	w.logger.Info("run finished", zap.String("run_id", job.RunID))
}

// Execute runs job synchronously, emitting RUN_START, one SITE_DONE per
// finished site, and RUN_DONE. On cancellation the results of the sites
// finished so far are returned together with the context error.
func (w *Worker) Execute(ctx context.Context, job Job) (Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", job.RunID),
			attribute.String("run.mode", string(job.Mode)),
			attribute.Int("run.sites", len(job.Input.BaseURLs)),
		),
	)
	defer span.End()

	reporter := progress.NewReporter(w.emitter, w.clock, job.RunID, job.Mode)
	reporter.Start(ctx, job.Input)

	var (
		out Outcome
		err error
	)
	switch job.Mode {
	case store.ModeScrape:
		out.Results, err = w.runner.Run(ctx, job.Input, reporter.Site)
	case store.ModeUniversal:
		var report meeting.Report
		report, err = w.runner.RunUniversal(ctx, job.Input, reporter.Site)
		out.Results = report.Results
		if !errors.Is(err, pipeline.ErrInvalidInput) {
			stats := report.Statistics
			out.Statistics = &stats
		}
	default:
		err = fmt.Errorf("%w: unknown mode %q", pipeline.ErrInvalidInput, job.Mode)
	}

	reporter.Finish(ctx, out.Statistics, err)
	span.SetAttributes(attribute.Int("run.sites_completed", len(out.Results)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, fmt.Errorf("run %s: %w", job.RunID, err)
	}
	return out, nil
}
