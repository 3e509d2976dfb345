// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/internal/server"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use: "serve",
		Annotations: map[string]string{
			"group": "execution",
		},
		Short: "Serve the consensus API over HTTP",
		Long: `Start an HTTP server exposing the consensus pipeline.

Endpoints:
  POST /v1/consensus       Run a query (add ?stream=true for server-sent events)
  GET  /v1/models          List models (capability, tier, allow, deny, where filters)
  GET  /v1/profiles        List profiles
  GET  /v1/health/models   Model health and circuit breaker state
  GET  /v1/budget          Spend against limits
  GET  /health             Liveness
  GET  /metrics            Prometheus metrics, when observability.metrics.enabled

Profiles are reloaded when the config file changes.`,
		Example: `  # Start with the configured address
  hive serve

  # Listen on all interfaces
  hive serve --addr 0.0.0.0:8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")

	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.OpenApp(ctx, true)
	if err != nil {
		return err
	}
	cfg := app.Config()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.Logger.Warn("shutdown incomplete", internallog.Error(err))
		}
	}()

	if addr == "" {
		addr = cfg.Server.Addr
	}
	v, _, _ := shared.GetVersion()

	deps := server.Deps{
		Engine:      app.Engine,
		Registry:    app.Registry,
		Breaker:     app.Breaker,
		Costs:       app.Stores.Costs,
		Performance: app.Stores.Performance,
	}
	if cfg.Observability.Metrics.Enabled {
		deps.Metrics = app.Telemetry.MetricsHandler()
	}

	srv := server.New(server.Config{
		Addr:            addr,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		MetricsPath:     cfg.Observability.Metrics.Path,
		Version:         v,
		Logger:          app.Logger,
	}, deps)

	bound, err := srv.Start(ctx)
	if err != nil {
		return shared.NewConfigError("failed to start server", err)
	}

	app.Logger.Info("hive ready",
		slog.String("addr", bound.String()),
		slog.String("version", v),
		slog.String("default_profile", cfg.DefaultProfile))
	if !shared.GetQuiet() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", bound)
	}

	<-ctx.Done()
	app.Logger.Info("shutting down")

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
