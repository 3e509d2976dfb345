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

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/pkg/consensus"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/llm/performance"
)

var (
	// ErrServerClosed is returned when operations are attempted on a closed server.
	ErrServerClosed = errors.New("server: closed")

	// ErrShutdownTimeout is returned when graceful shutdown exceeds the timeout.
	ErrShutdownTimeout = errors.New("server: shutdown timeout exceeded")
)

// maxRequestBody bounds POST bodies.
const maxRequestBody = 1 << 20

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address. Default: 127.0.0.1:8765
	Addr string

	// ShutdownTimeout is the maximum duration to wait for in-flight runs.
	// Default: 10 seconds
	ShutdownTimeout time.Duration

	// MetricsPath is where the metrics handler is mounted. Default: /metrics
	MetricsPath string

	// Version is reported by /health.
	Version string

	Logger *slog.Logger
}

// Deps are the components the handlers read from.
type Deps struct {
	Engine      *consensus.Engine
	Registry    *llm.Registry
	Breaker     *llm.CircuitBreaker
	Costs       *cost.Tracker
	Performance *performance.Tracker

	// Metrics serves the metrics path. Nil disables it.
	Metrics http.Handler
}

// Server serves the consensus API.
type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	closed     bool
}

// New creates a server. It does not listen until Start.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8765"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		config: cfg,
		deps:   deps,
		logger: internallog.WithComponent(cfg.Logger, "server"),
	}
}

// Handler returns the request handler with logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/consensus", s.handleConsensus)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/profiles", s.handleProfiles)
	mux.HandleFunc("GET /v1/health/models", s.handleModelHealth)
	mux.HandleFunc("GET /v1/budget", s.handleBudget)
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.config.MetricsPath, s.deps.Metrics)
	}
	return internallog.HTTPMiddleware(s.logger, mux)
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}
	if s.httpServer != nil {
		return s.listener.Addr(), nil
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout intentionally omitted to support streamed runs
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", internallog.Error(err))
		}
	}()

	s.logger.Info("server started", slog.String("addr", listener.Addr().String()))
	return listener.Addr(), nil
}

// Shutdown stops accepting requests and waits for in-flight ones up to
// the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrShutdownTimeout
		}
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}
