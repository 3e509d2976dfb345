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
	"log/slog"

	"github.com/hivetechs/consensus/internal/config"
	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/internal/store/sqlite"
	"github.com/hivetechs/consensus/pkg/consensus"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/llm/performance"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Stores holds the cost and performance trackers and the database behind
// them, if any.
type Stores struct {
	Costs       *cost.Tracker
	Performance *performance.Tracker

	db *sqlite.DB
}

// OpenStores opens the configured storage backend and builds both trackers
// on top of it. The performance windows are warmed for every model named
// by a profile.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		costStore cost.Store
		perfStore performance.Store
		db        *sqlite.DB
	)

	switch cfg.Storage.Backend {
	case BackendMemory:
		costStore = cost.NewMemoryStore()
		perfStore = performance.NewMemoryStore()
	case BackendSQLite, "":
		path, err := cfg.DatabasePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		db, err = sqlite.Open(sqlite.Config{Path: path, WAL: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		costStore = db.Costs()
		perfStore = db.Performance()
		logger.Debug("storage opened", slog.String("path", path))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	costs := cost.NewTracker(costStore, cfg.Budget,
		cost.WithLogger(internallog.WithComponent(logger, "cost")),
		cost.WithAlertHandler(budgetAlertLogger(logger)),
	)
	perf := performance.NewTracker(perfStore, performance.Config{
		WindowSize: cfg.Performance.WindowSize,
		LatencySLA: cfg.Performance.LatencySLA,
	}, performance.WithLogger(internallog.WithComponent(logger, "performance")))

	s := &Stores{Costs: costs, Performance: perf, db: db}

	profiles, err := cfg.ProfileSet()
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	if err := perf.Warm(ctx, profiles.ModelIDs(), stageNames()); err != nil {
		// A cold window only costs selection accuracy.
		logger.Warn("failed to warm performance windows", internallog.Error(err))
	}

	return s, nil
}

// Close flushes both trackers and then closes the database. Errors from
// every step are joined.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	if err := s.Costs.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cost tracker: %w", err))
	}
	if err := s.Performance.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("performance tracker: %w", err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func budgetAlertLogger(logger *slog.Logger) func(cost.Alert) {
	return func(a cost.Alert) {
		level := slog.LevelWarn
		if a.Level == cost.AlertExceeded {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "budget threshold crossed",
			slog.String("period", a.Period),
			slog.String("level", string(a.Level)),
			slog.Float64("spent", a.Spent),
			slog.Float64("limit", a.Limit))
	}
}

func stageNames() []string {
	names := make([]string, len(consensus.Stages))
	for i, s := range consensus.Stages {
		names[i] = s.String()
	}
	return names
}
