package consensus

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/llm/performance"
)

// Config tunes an Engine.
type Config struct {
	// DefaultProfile is used when a request names no profile.
	DefaultProfile string `yaml:"default_profile"`

	// EventBuffer is the capacity of each run's event channel.
	EventBuffer int `yaml:"event_buffer"`

	// MaxConcurrentRuns bounds runs executing at once. Further runs wait.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// StageTimeout bounds each stage across retries and fallbacks.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// Temperature applies to stages without a profile override.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps each stage's completion length.
	MaxTokens int `yaml:"max_tokens"`

	// Streaming selects the streaming transport for models that support it.
	Streaming bool `yaml:"streaming"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultProfile:    "balanced",
		EventBuffer:       64,
		MaxConcurrentRuns: 8,
		StageTimeout:      2 * time.Minute,
		Temperature:       0.7,
		MaxTokens:         4000,
		Streaming:         true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultProfile == "" {
		c.DefaultProfile = d.DefaultProfile
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = d.MaxConcurrentRuns
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = d.StageTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	return c
}

// Metrics receives engine measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordAttempt is called after every gateway call. errKind is empty on success.
	RecordAttempt(ctx context.Context, stage, modelID, errKind string, latency time.Duration)

	// RecordStage is called once per completed stage.
	RecordStage(ctx context.Context, stage, modelID string, tokensIn, tokensOut int, cost float64, duration time.Duration)

	// RecordRun is called once per run with its terminal status.
	RecordRun(ctx context.Context, profile string, status Status, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordAttempt(context.Context, string, string, string, time.Duration) {}
func (noopMetrics) RecordStage(context.Context, string, string, int, int, float64, time.Duration) {}
func (noopMetrics) RecordRun(context.Context, string, Status, time.Duration) {}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg.withDefaults()
	}
}

// WithCostTracker sets the cost tracker used for budget checks and recording.
func WithCostTracker(t *cost.Tracker) Option {
	return func(e *Engine) {
		e.costs = t
	}
}

// WithPerformanceTracker sets the tracker fed with per-attempt samples.
func WithPerformanceTracker(t *performance.Tracker) Option {
	return func(e *Engine) {
		e.perf = t
	}
}

// WithAdmission sets the rate limiter and circuit breaker gate.
func WithAdmission(a *llm.Admission) Option {
	return func(e *Engine) {
		e.admission = a
	}
}

// WithRetryPolicy sets the per-model retry policy.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(e *Engine) {
		e.retry = p
	}
}

// WithHooks installs stage callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithSelectorOptions passes options to the engine's Selector.
func WithSelectorOptions(opts ...SelectorOption) Option {
	return func(e *Engine) {
		e.selectorOpts = append(e.selectorOpts, opts...)
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}
