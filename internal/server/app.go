// Package server assembles the crawler from configuration and runs it either
// as a one-shot job or as the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/api"
	"github.com/JakeFAU/meeting-crawler/internal/clock/system"
	"github.com/JakeFAU/meeting-crawler/internal/config"
	"github.com/JakeFAU/meeting-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/meeting-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/meeting-crawler/internal/id/uuid"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/meeting-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/meeting-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/meeting-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/meeting-crawler/internal/queue/memory"
	"github.com/JakeFAU/meeting-crawler/internal/resolver"
	gcsstorage "github.com/JakeFAU/meeting-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/meeting-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/meeting-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/meeting-crawler/internal/storage/postgres"
	"github.com/JakeFAU/meeting-crawler/internal/store"
	"github.com/JakeFAU/meeting-crawler/internal/telemetry"
	"github.com/JakeFAU/meeting-crawler/internal/worker"
)

// Options adjusts Build for the calling command.
type Options struct {
	// ObjectName names the output document of a run. Defaults to
	// runs/<run_id>.json.
	ObjectName progresssinks.ObjectNamer
	// Engines is the number of independent browser pipelines. Defaults to
	// server.workers.
	Engines int
	// Registerer receives the run progress collectors. Nil skips them.
	Registerer prometheus.Registerer
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	idGen  meeting.IDGenerator

	engines  []engine
	resolver *resolver.Resolver

	runs          store.RunRepository
	pgStore       *pgstore.RunStore
	blobs         progresssinks.BlobStore
	storageClient *storage.Client
	pubsubClient  *pubsub.Client
	publisher     *gcppublisher.Publisher
	hub           *progress.Hub
	tracer        *sdktrace.TracerProvider

	queue    *queueMemory.Queue[worker.Job]
	registry *worker.Registry
	workers  []*worker.Worker
}

// DefaultObjectName places each run's document under runs/.
func DefaultObjectName(runID string) string {
	return path.Join("runs", runID+".json")
}

// Build creates the application's dependencies. On error everything built
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ObjectName == nil {
		opts.ObjectName = DefaultObjectName
	}
	if opts.Engines <= 0 {
		opts.Engines = max(cfg.Server.Workers, 1)
	}
	app = &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		idGen:    uuid.NewUUIDGenerator(),
		registry: worker.NewRegistry(),
	}
	defer func() {
		if err != nil {
			if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
			app = nil
		}
	}()

	if err = app.setupTracing(ctx); err != nil {
		return app, err
	}
	if err = app.setupOutput(ctx); err != nil {
		return app, err
	}
	if err = app.setupDatabase(ctx); err != nil {
		return app, err
	}
	if err = app.setupPublisher(ctx); err != nil {
		return app, err
	}
	if err = app.setupProgress(ctx, opts); err != nil {
		return app, err
	}

	gate := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Crawler.RequestsPerSecond})
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgents:    cfg.Crawler.UserAgents,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.PageTimeout(),
	})
	for i := 0; i < opts.Engines; i++ {
		app.engines = append(app.engines, newEngine(cfg, pages, gate, app.clock, logger.With(zap.Int("engine", i))))
		app.workers = append(app.workers, worker.New(
			nil,
			app.engines[i].runner,
			app.hub,
			app.clock,
			app.registry,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.resolver = newResolver(cfg, gate, logger)
	logger.Info("application built",
		zap.String("browser", cfg.Crawler.Browser),
		zap.Int("engines", opts.Engines),
		zap.String("output", cfg.Output.Provider),
		zap.Bool("postgres", app.pgStore != nil),
		zap.Bool("pubsub", app.publisher != nil),
	)
	return app, nil
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Telemetry.Tracing {
		return nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("trace exporter init failed: %w", err)
	}
	a.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
		Exporter:    exporter,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	return nil
}

func (a *App) setupOutput(ctx context.Context) error {
	var err error
	switch a.cfg.Output.Provider {
	case config.OutputGCS:
		a.logger.Info("using GCS output backend", zap.String("bucket", a.cfg.Output.GCSBucket))
		a.storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.storageClient, gcsstorage.Config{
			Bucket: a.cfg.Output.GCSBucket,
			Prefix: a.cfg.Output.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case config.OutputLocal:
		a.logger.Info("using local output backend", zap.String("dir", a.cfg.Output.Dir))
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.Dir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	default:
		a.logger.Info("using in-memory output backend")
		a.blobs = memoryStorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no db.dsn configured, runs are kept in memory")
		a.runs = memoryStorage.NewRunStore()
		return nil
	}
	var err error
	a.pgStore, err = pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	}, a.logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	if err := a.pgStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("run store schema failed: %w", err)
	}
	a.runs = a.pgStore
	a.logger.Info("postgres run store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context, opts Options) error {
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress")),
		progresssinks.NewOutputSink(a.blobs, opts.ObjectName, a.logger.Named("output")),
		progresssinks.NewStoreSink(a.runs),
	}
	if a.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(a.publisher))
	}
	if opts.Registerer != nil {
		promSink, err := progresssinks.NewPrometheusSink(opts.Registerer)
		if err != nil {
			return fmt.Errorf("progress metrics init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	a.hub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}, sinkList...)
	return nil
}

// NewJob assigns a run ID to a request.
func (a *App) NewJob(mode store.Mode, in meeting.Input) (worker.Job, error) {
	id, err := a.idGen.NewID()
	if err != nil {
		return worker.Job{}, fmt.Errorf("new run id: %w", err)
	}
	return worker.Job{RunID: id, Mode: mode, Input: in}, nil
}

// Execute runs job synchronously on the first engine. Progress, including
// the output document, is flushed once Close returns.
func (a *App) Execute(ctx context.Context, job worker.Job) (worker.Outcome, error) {
	out, err := a.workers[0].Execute(ctx, job)
	if err != nil {
		return out, fmt.Errorf("execute: %w", err)
	}
	return out, nil
}

// Resolve resolves media URLs in request order, omitting failures.
func (a *App) Resolve(ctx context.Context, reqs []resolver.Request) []string {
	return a.resolver.BatchResolve(ctx, reqs)
}

// Serve runs the HTTP service and the worker pool until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	a.queue = queueMemory.NewQueue[worker.Job](a.cfg.Server.QueueDepth)
	runnables := make([]dispatcher.Runnable, 0, len(a.engines))
	for i, e := range a.engines {
		runnables = append(runnables, worker.New(
			a.queue,
			e.runner,
			a.hub,
			a.clock,
			a.registry,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(a.queue, runnables)

	var checks []api.ReadinessCheck
	if a.pgStore != nil {
		checks = append(checks, a.pgStore.Ping)
	}
	apiServer := api.NewServer(
		a.runs,
		dispatch,
		a.registry,
		a.resolver,
		a.idGen,
		a.clock,
		a.cfg,
		a.logger.Named("api"),
		checks...,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", len(runnables)))
		dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	<-dispatchDone
	return runErr
}

// Close flushes progress and releases every client. It is safe to call on
// a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	for _, e := range a.engines {
		if err := e.browser.Close(); err != nil {
			a.logger.Warn("browser close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	return errors.Join(errs...)
}
