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

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/hivetechs/consensus/internal/config"
	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/internal/secrets"
	"github.com/hivetechs/consensus/internal/tracing"
	"github.com/hivetechs/consensus/pkg/consensus"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
	"github.com/hivetechs/consensus/pkg/llm/providers/openrouter"
)

const instrumentationName = "github.com/hivetechs/consensus"

// Options adjusts how an App is assembled.
type Options struct {
	// ConfigPath is the file the configuration was loaded from, as passed
	// to config.Load. It is only used when Watch is set.
	ConfigPath string

	// Watch reloads profiles when the config file changes.
	Watch bool

	// Version is reported in telemetry resources.
	Version string

	// Logger overrides the logger built from the log section.
	Logger *slog.Logger

	// Gateway replaces the OpenRouter client. No API key is needed and
	// the catalog is only fetched if it implements llm.CatalogSource.
	Gateway llm.Gateway

	// Secrets resolves the API key. Defaults to secrets.Default().
	Secrets *secrets.Resolver

	// TraceOutput receives spans from the stdout exporter.
	TraceOutput io.Writer
}

// App is a fully wired consensus engine together with everything it owns.
type App struct {
	Engine    *consensus.Engine
	Registry  *llm.Registry
	Breaker   *llm.CircuitBreaker
	Telemetry *tracing.Provider
	Stores    *Stores
	Logger    *slog.Logger

	cfg     atomic.Pointer[config.Config]
	watcher *config.Watcher
	stop    context.CancelFunc
}

// New builds an App from cfg. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = internallog.New(cfg.Log.Logging())
	}

	profiles, err := cfg.ProfileSet()
	if err != nil {
		return nil, err
	}

	telemetry, err := tracing.New(ctx, cfg.Observability, tracing.Options{
		Version: opts.Version,
		Output:  opts.TraceOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	gateway := opts.Gateway
	if gateway == nil {
		gateway, err = newGateway(ctx, cfg, opts.Secrets, logger)
		if err != nil {
			telemetry.Shutdown(ctx)
			return nil, err
		}
	}
	traced := tracing.WrapGateway(gateway, telemetry.Tracer(instrumentationName+"/gateway"))

	registryOpts := []llm.RegistryOption{
		llm.WithRegistryLogger(internallog.WithComponent(logger, "registry")),
	}
	_, hasCatalog := gateway.(llm.CatalogSource)
	if hasCatalog {
		registryOpts = append(registryOpts, llm.WithCatalogSource(traced))
	}
	registry, err := llm.NewRegistry(openrouter.SeedModels(pricing.NewTable(), profiles.ModelIDs()), registryOpts...)
	if err != nil {
		telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}
	if hasCatalog {
		if err := registry.Refresh(ctx); err != nil {
			logger.Warn("model catalog fetch failed; using built-in prices", internallog.Error(err))
		} else {
			logger.Debug("model catalog loaded", slog.Int("models", registry.Len()))
		}
	}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		telemetry.Shutdown(ctx)
		return nil, err
	}

	breaker := llm.NewCircuitBreaker(cfg.Breaker.LLM())
	admission := llm.NewAdmission(llm.NewRateLimiter(cfg.RateLimits.Default, cfg.RateLimits.Providers), breaker)
	telemetry.Metrics().ObserveCircuits(breaker)

	engine, err := consensus.New(traced, registry, profiles,
		consensus.WithConfig(consensus.Config{
			DefaultProfile:    cfg.DefaultProfile,
			EventBuffer:       cfg.Engine.EventBuffer,
			MaxConcurrentRuns: cfg.Engine.MaxConcurrentRuns,
			StageTimeout:      cfg.Timeouts.Stage,
			Temperature:       cfg.Engine.Temperature,
			MaxTokens:         cfg.Engine.MaxTokens,
			Streaming:         cfg.Engine.Streaming,
		}),
		consensus.WithCostTracker(stores.Costs),
		consensus.WithPerformanceTracker(stores.Performance),
		consensus.WithAdmission(admission),
		consensus.WithRetryPolicy(cfg.Retry.Policy()),
		consensus.WithSelectorOptions(consensus.WithMaxFallbacks(cfg.Engine.MaxFallbacks)),
		consensus.WithLogger(logger),
		consensus.WithTracer(telemetry.Tracer(instrumentationName)),
		consensus.WithMetrics(telemetry.Metrics()),
	)
	if err != nil {
		stores.Close(ctx)
		telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	a := &App{
		Engine:    engine,
		Registry:  registry,
		Breaker:   breaker,
		Telemetry: telemetry,
		Stores:    stores,
		Logger:    logger,
		stop:      stop,
	}
	a.cfg.Store(cfg)

	if hasCatalog {
		registry.Start(runCtx, cfg.Gateway.CatalogRefresh)
	}

	if opts.Watch {
		if err := a.watch(opts.ConfigPath, cfg); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	return a, nil
}

func newGateway(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver, logger *slog.Logger) (llm.Gateway, error) {
	if resolver == nil {
		resolver = secrets.Default()
	}
	apiKey, source, err := resolver.APIKey(ctx, cfg.Gateway.APIKey)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return nil, &pkgerrors.ConfigError{
				Key:    "gateway.api_key",
				Reason: "no API key found; run 'hive auth login' or set HIVE_API_KEY",
				Cause:  err,
			}
		}
		return nil, fmt.Errorf("failed to resolve API key: %w", err)
	}
	logger.Debug("gateway API key resolved",
		slog.String("source", source),
		slog.String("key", internallog.SanitizeAPIKey(apiKey)))

	client, err := openrouter.New(openrouter.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		APIKey:           apiKey,
		Referer:          cfg.Gateway.Referer,
		Title:            cfg.Gateway.Title,
		Timeout:          cfg.Timeouts.Request,
		ProgressInterval: cfg.Gateway.ProgressInterval,
		Logger:           internallog.WithComponent(logger, "gateway"),
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// watch starts reloading the config file. A missing default file is not
// watched.
func (a *App) watch(configPath string, initial *config.Config) error {
	path, explicit := config.ResolvePath(configPath)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			a.Logger.Debug("no config file to watch", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to watch config: %w", err)
	}

	w, err := config.NewWatcher(config.WatcherConfig{
		Path:     path,
		Initial:  initial,
		OnChange: a.apply,
		Logger:   internallog.WithComponent(a.Logger, "config"),
	})
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	a.watcher = w
	return nil
}

// apply installs a reloaded snapshot. Only the profile set takes effect
// without a restart.
func (a *App) apply(next *config.Config) {
	profiles, err := next.ProfileSet()
	if err != nil {
		a.Logger.Warn("reloaded config has invalid profiles", internallog.Error(err))
		return
	}
	if err := a.Engine.SetProfiles(profiles); err != nil {
		a.Logger.Warn("failed to apply reloaded profiles", internallog.Error(err))
		return
	}
	a.cfg.Store(next)
	a.Logger.Info("configuration reloaded", slog.Int("profiles", profiles.Len()))
}

// Config returns the configuration snapshot currently in effect.
func (a *App) Config() *config.Config {
	return a.cfg.Load()
}

// Close stops background work, flushes the trackers, closes storage and
// shuts down telemetry, in that order.
func (a *App) Close(ctx context.Context) error {
	a.stop()

	var errs []error
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
	}
	if err := a.Stores.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}
