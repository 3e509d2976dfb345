package cost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm/internal/spool"
)

// DefaultAlertThreshold is the fraction of a limit that triggers a warning.
const DefaultAlertThreshold = 0.8

// BudgetConfig holds spending limits in USD. A zero limit is unlimited.
type BudgetConfig struct {
	DailyLimit      float64 `yaml:"daily_limit" json:"daily_limit"`
	MonthlyLimit    float64 `yaml:"monthly_limit" json:"monthly_limit"`
	PerRequestLimit float64 `yaml:"per_request_limit" json:"per_request_limit"`

	// AlertThreshold is the fraction of a limit that emits a warning alert.
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold"`

	// Enforce turns limits into hard ceilings checked before each stage.
	Enforce bool `yaml:"enforce" json:"enforce"`
}

// Status is a snapshot of spend against limits.
type Status struct {
	DailySpent     float64 `json:"daily_spent"`
	MonthlySpent   float64 `json:"monthly_spent"`
	DailyLimit     float64 `json:"daily_limit,omitempty"`
	MonthlyLimit   float64 `json:"monthly_limit,omitempty"`
	AlertThreshold float64 `json:"alert_threshold"`
	Enforced       bool    `json:"enforced"`
}

// DailyRatio returns spent/limit, or 0 for unlimited budgets.
func (s Status) DailyRatio() float64 { return ratio(s.DailySpent, s.DailyLimit) }

// MonthlyRatio returns spent/limit, or 0 for unlimited budgets.
func (s Status) MonthlyRatio() float64 { return ratio(s.MonthlySpent, s.MonthlyLimit) }

func ratio(spent, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spent / limit
}

// AlertLevel is the severity of a budget alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertExceeded AlertLevel = "exceeded"
)

// Alert reports that spend crossed a threshold.
type Alert struct {
	Period string     `json:"period"`
	Level  AlertLevel `json:"level"`
	Spent  float64    `json:"spent"`
	Limit  float64    `json:"limit"`
	At     time.Time  `json:"at"`
}

// Tracker records spend without blocking callers and answers budget queries
// by aggregating over the store plus records not yet persisted.
type Tracker struct {
	store   Store
	cfg     BudgetConfig
	logger  *slog.Logger
	now     func() time.Time
	onAlert func(Alert)

	spool *spool.Spool[Record]

	// A record stays in pending until its append has committed, so spend
	// is over-counted for that instant rather than missed.
	view    sync.RWMutex
	pending map[string]Record

	mu      sync.Mutex
	alerted map[string]bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithAlertHandler registers a callback for threshold alerts. Each
// (period, level) pair fires at most once per budget period.
func WithAlertHandler(fn func(Alert)) Option {
	return func(t *Tracker) { t.onAlert = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker writing to store.
func NewTracker(store Store, cfg BudgetConfig, opts ...Option) *Tracker {
	if cfg.AlertThreshold <= 0 || cfg.AlertThreshold > 1 {
		cfg.AlertThreshold = DefaultAlertThreshold
	}
	t := &Tracker{
		store:   store,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(map[string]Record),
		alerted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	// Records that fail every write stay in pending: the spend still
	// counts against the budget for the life of the process.
	t.spool = spool.New(t.persist, spool.Options{Logger: t.logger})
	return t
}

// Config returns the budget configuration.
func (t *Tracker) Config() BudgetConfig {
	return t.cfg
}

// Record enqueues a cost record and returns immediately. Storage failures
// are retried in the background and logged, never returned.
func (t *Tracker) Record(r Record) Record {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.now()
	}
	if r.Cost < 0 {
		r.Cost = 0
	}

	t.view.Lock()
	t.pending[r.ID] = r
	t.view.Unlock()

	if err := t.spool.Enqueue(r); err != nil {
		t.logger.Error("cost record not queued",
			slog.String("model_id", r.ModelID),
			slog.String("stage", r.Stage),
			slog.Float64("cost", r.Cost),
			slog.Any("error", err))
	}
	return r
}

func (t *Tracker) persist(ctx context.Context, r Record) error {
	if err := t.store.Append(ctx, r); err != nil {
		return err
	}
	t.view.Lock()
	delete(t.pending, r.ID)
	t.view.Unlock()
	t.checkAlerts(ctx)
	return nil
}

// Flush waits until queued records are persisted.
func (t *Tracker) Flush(ctx context.Context) error {
	return t.spool.Flush(ctx)
}

// Close drains the queue.
func (t *Tracker) Close(ctx context.Context) error {
	return t.spool.Close(ctx)
}

func startOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func startOfMonth(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}

// spentSince sums persisted and not-yet-persisted spend since from.
func (t *Tracker) spentSince(ctx context.Context, from time.Time) (float64, error) {
	t.view.RLock()
	defer t.view.RUnlock()

	agg, err := t.store.Aggregate(ctx, AggregateOptions{StartTime: &from})
	if err != nil {
		return 0, fmt.Errorf("aggregating spend: %w", err)
	}
	total := agg.Cost
	for _, r := range t.pending {
		if !r.CreatedAt.Before(from) {
			total += r.Cost
		}
	}
	return total, nil
}

// Pending returns the number of records not yet persisted.
func (t *Tracker) Pending() int {
	t.view.RLock()
	defer t.view.RUnlock()
	return len(t.pending)
}

// BudgetStatus returns current daily and monthly spend.
func (t *Tracker) BudgetStatus(ctx context.Context) (Status, error) {
	now := t.now()
	daily, err := t.spentSince(ctx, startOfDay(now))
	if err != nil {
		return Status{}, err
	}
	monthly, err := t.spentSince(ctx, startOfMonth(now))
	if err != nil {
		return Status{}, err
	}
	return Status{
		DailySpent:     daily,
		MonthlySpent:   monthly,
		DailyLimit:     t.cfg.DailyLimit,
		MonthlyLimit:   t.cfg.MonthlyLimit,
		AlertThreshold: t.cfg.AlertThreshold,
		Enforced:       t.cfg.Enforce,
	}, nil
}

// CheckCeiling returns a BudgetExceededError when spending estimate more
// would cross a hard limit. Limits are only enforced when configured so.
func (t *Tracker) CheckCeiling(ctx context.Context, estimate float64) error {
	if !t.cfg.Enforce {
		return nil
	}
	if t.cfg.PerRequestLimit > 0 && estimate > t.cfg.PerRequestLimit {
		return &pkgerrors.BudgetExceededError{Period: "per-request", Spent: estimate, Limit: t.cfg.PerRequestLimit}
	}
	if t.cfg.DailyLimit <= 0 && t.cfg.MonthlyLimit <= 0 {
		return nil
	}

	status, err := t.BudgetStatus(ctx)
	if err != nil {
		return err
	}
	if exceeds(status.DailySpent, estimate, t.cfg.DailyLimit) {
		return &pkgerrors.BudgetExceededError{Period: "daily", Spent: status.DailySpent, Limit: t.cfg.DailyLimit}
	}
	if exceeds(status.MonthlySpent, estimate, t.cfg.MonthlyLimit) {
		return &pkgerrors.BudgetExceededError{Period: "monthly", Spent: status.MonthlySpent, Limit: t.cfg.MonthlyLimit}
	}
	return nil
}

// CheckRun checks the hard limits before the next stage of a run that has
// already spent runSpent and whose next stage is expected to cost estimate.
func (t *Tracker) CheckRun(ctx context.Context, runSpent, estimate float64) error {
	if !t.cfg.Enforce {
		return nil
	}
	if exceeds(runSpent, estimate, t.cfg.PerRequestLimit) {
		return &pkgerrors.BudgetExceededError{Period: "per-request", Spent: runSpent, Limit: t.cfg.PerRequestLimit}
	}
	return t.CheckCeiling(ctx, estimate)
}

func exceeds(spent, estimate, limit float64) bool {
	if limit <= 0 {
		return false
	}
	return spent >= limit || spent+estimate > limit
}

func (t *Tracker) checkAlerts(ctx context.Context) {
	if t.onAlert == nil || (t.cfg.DailyLimit <= 0 && t.cfg.MonthlyLimit <= 0) {
		return
	}
	status, err := t.BudgetStatus(ctx)
	if err != nil {
		t.logger.Warn("budget status unavailable for alerts", slog.Any("error", err))
		return
	}
	now := t.now()
	t.maybeAlert("daily", now.Format("2006-01-02"), status.DailySpent, t.cfg.DailyLimit, now)
	t.maybeAlert("monthly", now.Format("2006-01"), status.MonthlySpent, t.cfg.MonthlyLimit, now)
}

func (t *Tracker) maybeAlert(period, key string, spent, limit float64, now time.Time) {
	if limit <= 0 {
		return
	}
	level := AlertLevel("")
	switch r := spent / limit; {
	case r >= 1:
		level = AlertExceeded
	case r >= t.cfg.AlertThreshold:
		level = AlertWarning
	default:
		return
	}

	id := period + ":" + key + ":" + string(level)
	t.mu.Lock()
	if t.alerted[id] {
		t.mu.Unlock()
		return
	}
	t.alerted[id] = true
	t.mu.Unlock()

	t.logger.Warn("budget threshold crossed",
		slog.String("period", period),
		slog.String("level", string(level)),
		slog.Float64("spent", spent),
		slog.Float64("limit", limit))
	t.onAlert(Alert{Period: period, Level: level, Spent: spent, Limit: limit, At: now})
}

// Summary returns spend since from grouped by model or stage.
func (t *Tracker) Summary(ctx context.Context, group GroupBy, from time.Time) (map[string]Aggregate, error) {
	return t.store.AggregateBy(ctx, group, AggregateOptions{StartTime: &from})
}
