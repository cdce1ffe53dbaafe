// Package cmd defines and implements the CLI commands for the meeting-crawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/config"
	"github.com/JakeFAU/meeting-crawler/internal/logging"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/resolver"
	"github.com/JakeFAU/meeting-crawler/internal/server"
	"github.com/JakeFAU/meeting-crawler/internal/store"
	"github.com/JakeFAU/meeting-crawler/internal/worker"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	NewJob(mode store.Mode, in meeting.Input) (worker.Job, error)
	Execute(ctx context.Context, job worker.Job) (worker.Outcome, error)
	Resolve(ctx context.Context, reqs []resolver.Request) []string
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// env is what every subcommand needs before building an App.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts server.Options) (App, error) {
	return server.Build(ctx, cfg, logger, opts)
}

// newLogger is replaced in tests to keep output quiet.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Development, cfg.Telemetry.ServiceName)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "meeting-crawler",
		Short: "Collects public meeting records from municipal websites.",
		Long: `meeting-crawler visits the meeting calendars of city and county
websites, extracts the meetings held within a date window together with
their agenda, minutes and video links, and writes the results as JSON.
It runs one request from the command line or serves the same work over HTTP.`,
		SilenceUsage: true,

		// Loads configuration and the logger BEFORE the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); MEETINGS_* environment variables override it")

	cmd.AddCommand(
		newRunCmd(store.ModeScrape),
		newRunCmd(store.ModeUniversal),
		newResolveCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// withApp builds an App for the command, runs fn and closes the App. Close
// flushes pending progress so output documents are complete on return.
func withApp(ctx context.Context, opts server.Options, fn func(*env, App) error) (err error) {
	e, err := resolveEnv(ctx)
	if err != nil {
		return err
	}
	app, err := newApp(ctx, e.cfg, e.logger, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			e.logger.Warn("Failed to close application", zap.Error(cerr))
			err = errors.Join(err, cerr)
		}
	}()
	return fn(e, app)
}

// Execute runs the root command with ctx and returns its error.
func Execute(ctx context.Context) error {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}
