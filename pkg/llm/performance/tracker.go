package performance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hivetechs/consensus/pkg/llm/internal/spool"
)

// Defaults for the rolling window.
const (
	DefaultWindowSize = 100
	DefaultLatencySLA = 10 * time.Second
)

// State is a derived health classification.
type State string

const (
	Healthy   State = "healthy"
	Degraded  State = "degraded"
	Unhealthy State = "unhealthy"
)

// Health summarizes the rolling window for one (model, stage).
type Health struct {
	ModelID     string        `json:"model_id"`
	Stage       string        `json:"stage"`
	State       State         `json:"state"`
	Samples     int           `json:"samples"`
	SuccessRate float64       `json:"success_rate"`
	P50         time.Duration `json:"p50"`
	P95         time.Duration `json:"p95"`
	P99         time.Duration `json:"p99"`
	AvgQuality  *float64      `json:"avg_quality,omitempty"`
	Issues      []string      `json:"issues,omitempty"`
}

// Config configures a Tracker.
type Config struct {
	// WindowSize is the number of recent samples considered. Zero means 100.
	WindowSize int

	// LatencySLA is the p95 latency above which a model is degraded.
	LatencySLA time.Duration
}

// window holds the newest samples for one key behind its own lock.
type window struct {
	mu      sync.Mutex
	samples []Sample
}

func (w *window) add(s Sample, size int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	if len(w.samples) > size {
		// Copy so the backing array does not grow without bound.
		w.samples = append([]Sample(nil), w.samples[len(w.samples)-size:]...)
	}
}

func (w *window) snapshot() []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Sample(nil), w.samples...)
}

// Tracker keeps a rolling window per (model, stage) in memory and appends
// every sample to a durable store in the background.
type Tracker struct {
	cfg    Config
	store  Store
	logger *slog.Logger
	now    func() time.Time
	spool  *spool.Spool[Sample]

	mu      sync.RWMutex
	windows map[key]*window
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. A nil store keeps samples in memory only.
func NewTracker(store Store, cfg Config, opts ...Option) *Tracker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.LatencySLA <= 0 {
		cfg.LatencySLA = DefaultLatencySLA
	}
	if store == nil {
		store = NewMemoryStore()
	}
	t := &Tracker{
		cfg:     cfg,
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
		windows: make(map[key]*window),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.spool = spool.New(func(ctx context.Context, s Sample) error {
		return t.store.Append(ctx, s)
	}, spool.Options{Logger: t.logger})
	return t
}

func (t *Tracker) window(k key) *window {
	t.mu.RLock()
	w, ok := t.windows[k]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.windows[k]; !ok {
		w = &window{}
		t.windows[k] = w
	}
	return w
}

// Record appends a sample. The in-memory window is updated immediately;
// persistence happens in the background.
func (t *Tracker) Record(s Sample) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t.now()
	}
	t.window(key{s.ModelID, s.Stage}).add(s, t.cfg.WindowSize)
	if err := t.spool.Enqueue(s); err != nil {
		t.logger.Warn("performance sample not queued",
			slog.String("model_id", s.ModelID),
			slog.String("stage", s.Stage),
			slog.Any("error", err))
	}
}

// Warm loads the newest samples for each (model, stage) from the store.
// Call it before serving traffic; samples recorded earlier are kept.
func (t *Tracker) Warm(ctx context.Context, models, stages []string) error {
	for _, m := range models {
		for _, st := range stages {
			samples, err := t.store.Recent(ctx, m, st, t.cfg.WindowSize)
			if err != nil {
				return fmt.Errorf("loading samples for %s/%s: %w", m, st, err)
			}
			if len(samples) == 0 {
				continue
			}
			w := t.window(key{m, st})
			w.mu.Lock()
			merged := append(samples, w.samples...)
			if len(merged) > t.cfg.WindowSize {
				merged = merged[len(merged)-t.cfg.WindowSize:]
			}
			w.samples = merged
			w.mu.Unlock()
		}
	}
	return nil
}

// Samples returns the current window for (model, stage), oldest first.
func (t *Tracker) Samples(modelID, stage string) []Sample {
	t.mu.RLock()
	w, ok := t.windows[key{modelID, stage}]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return w.snapshot()
}

// Health computes the health of (model, stage) from its window. A model
// with no samples is reported healthy.
func (t *Tracker) Health(modelID, stage string) Health {
	return t.evaluate(modelID, stage, t.Samples(modelID, stage))
}

// ModelHealth computes health across every stage the model has samples for.
func (t *Tracker) ModelHealth(modelID string) Health {
	t.mu.RLock()
	var all []Sample
	for k, w := range t.windows {
		if k.model == modelID {
			all = append(all, w.snapshot()...)
		}
	}
	t.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	if len(all) > t.cfg.WindowSize {
		all = all[len(all)-t.cfg.WindowSize:]
	}
	return t.evaluate(modelID, "", all)
}

// Snapshot returns the health of every tracked (model, stage), sorted.
func (t *Tracker) Snapshot() []Health {
	t.mu.RLock()
	keys := make([]key, 0, len(t.windows))
	for k := range t.windows {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].model != keys[j].model {
			return keys[i].model < keys[j].model
		}
		return keys[i].stage < keys[j].stage
	})
	out := make([]Health, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.Health(k.model, k.stage))
	}
	return out
}

func (t *Tracker) evaluate(modelID, stage string, samples []Sample) Health {
	h := Health{ModelID: modelID, Stage: stage, State: Healthy, Samples: len(samples)}
	if len(samples) == 0 {
		return h
	}

	latencies := make([]time.Duration, 0, len(samples))
	var ok int
	var qualitySum float64
	var qualityN int
	for _, s := range samples {
		if s.Success {
			ok++
		}
		latencies = append(latencies, s.Latency)
		if s.Quality != nil {
			qualitySum += *s.Quality
			qualityN++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	h.SuccessRate = float64(ok) / float64(len(samples))
	h.P50 = percentile(latencies, 0.50)
	h.P95 = percentile(latencies, 0.95)
	h.P99 = percentile(latencies, 0.99)
	if qualityN > 0 {
		avg := qualitySum / float64(qualityN)
		h.AvgQuality = &avg
	}

	switch {
	case h.SuccessRate < 0.5:
		h.State = Unhealthy
		h.Issues = append(h.Issues, fmt.Sprintf("critical success rate %.1f%%", h.SuccessRate*100))
	case h.SuccessRate < 0.9:
		h.State = Degraded
		h.Issues = append(h.Issues, fmt.Sprintf("low success rate %.1f%%", h.SuccessRate*100))
	}
	if h.P95 > t.cfg.LatencySLA {
		if h.State == Healthy {
			h.State = Degraded
		}
		h.Issues = append(h.Issues, fmt.Sprintf("p95 latency %v over SLA %v", h.P95, t.cfg.LatencySLA))
	}
	return h
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// Flush waits until queued samples are persisted.
func (t *Tracker) Flush(ctx context.Context) error {
	return t.spool.Flush(ctx)
}

// Close drains the queue.
func (t *Tracker) Close(ctx context.Context) error {
	return t.spool.Close(ctx)
}
