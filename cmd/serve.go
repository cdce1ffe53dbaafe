package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/server"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and worker pool",
		Long: `Serves the run API on server.port (or $PORT when set). Submitted runs are
queued and executed by server.workers workers; results are written to the
configured output location and, when configured, Postgres and Pub/Sub.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if port := os.Getenv("PORT"); port != "" {
				p, err := strconv.Atoi(port)
				if err != nil {
					return fmt.Errorf("invalid PORT %q: %w", port, err)
				}
				e.cfg.Server.Port = p
			}
			zap.ReplaceGlobals(e.logger)

			opts := server.Options{Registerer: prometheus.DefaultRegisterer}
			return withApp(cmd.Context(), opts, func(e *env, app App) error {
				e.logger.Info("Starting server", zap.Int("port", e.cfg.Server.Port), zap.Int("workers", e.cfg.Server.Workers))
				if err := app.Serve(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("serve: %w", err)
				}
				e.logger.Info("Server stopped")
				return nil
			})
		},
	}
}
