package consensus

import (
	"fmt"
	"log/slog"
	"sort"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/performance"
	"github.com/hivetechs/consensus/pkg/profile"
)

// DefaultMaxFallbacks bounds the fallback list of a selection.
const DefaultMaxFallbacks = 3

// Weights are the scoring coefficients for quality, cost and latency.
type Weights struct {
	Quality float64
	Cost    float64
	Latency float64
}

// WeightsFor returns the scoring weights of a strategy.
func WeightsFor(s profile.Strategy) Weights {
	switch s {
	case profile.StrategyQualityFirst:
		return Weights{Quality: 0.7, Cost: 0.1, Latency: 0.2}
	case profile.StrategyPerformance:
		return Weights{Quality: 0.2, Cost: 0.2, Latency: 0.6}
	case profile.StrategyCostOptimized:
		return Weights{Quality: 0.1, Cost: 0.7, Latency: 0.2}
	default:
		return Weights{Quality: 0.4, Cost: 0.3, Latency: 0.3}
	}
}

// Selection is the ordered list of models to try for one stage.
type Selection struct {
	Primary   llm.ModelDescriptor
	Fallbacks []llm.ModelDescriptor
	Warnings  []string
}

// Models returns the primary followed by the fallbacks.
func (s Selection) Models() []llm.ModelDescriptor {
	return append([]llm.ModelDescriptor{s.Primary}, s.Fallbacks...)
}

// Budget narrows a selection to models whose estimated call cost fits.
type Budget struct {
	// Remaining is the spend left for the run. Zero or less disables the check.
	Remaining float64

	// InputTokens and OutputTokens size the per-call estimate.
	InputTokens  int
	OutputTokens int
}

// Scored is a candidate with its computed score.
type Scored struct {
	Model llm.ModelDescriptor `json:"model"`
	Score float64             `json:"score"`
}

// Selector ranks registry models for a stage. It reads the registry,
// performance windows and circuit state but never mutates them.
type Selector struct {
	registry     *llm.Registry
	perf         *performance.Tracker
	admission    *llm.Admission
	maxFallbacks int
	logger       *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithMaxFallbacks bounds the number of fallback models per selection.
func WithMaxFallbacks(n int) SelectorOption {
	return func(s *Selector) {
		if n >= 0 {
			s.maxFallbacks = n
		}
	}
}

// WithSelectorLogger sets the selector's logger.
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSelector creates a selector. perf and admission may be nil, in which
// case every model is treated as healthy.
func NewSelector(registry *llm.Registry, perf *performance.Tracker, admission *llm.Admission, opts ...SelectorOption) *Selector {
	s := &Selector{
		registry:     registry,
		perf:         perf,
		admission:    admission,
		maxFallbacks: DefaultMaxFallbacks,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select ranks models for stage under profile p with no budget narrowing.
func (s *Selector) Select(stage Stage, p profile.Profile) (Selection, error) {
	return s.SelectWithin(stage, p, Budget{})
}

// SelectWithin ranks models for stage under profile p, dropping models
// whose estimated call cost exceeds budget.Remaining.
//
// The profile's model for the stage leads when it is eligible and healthy.
// The rest follow by descending score with ties broken by id. Unhealthy
// and circuit-open models are only used when nothing else qualifies.
func (s *Selector) SelectWithin(stage Stage, p profile.Profile, budget Budget) (Selection, error) {
	configured := p.Models.For(string(stage))

	eligible, err := s.eligible(stage, p, budget)
	if err != nil {
		return Selection{}, err
	}
	if len(eligible) == 0 {
		return Selection{}, &pkgerrors.ModelUnavailableError{
			ModelID: configured,
			Reason:  fmt.Sprintf("no eligible models for stage %s", stage),
		}
	}

	var healthy, sick []llm.ModelDescriptor
	for _, m := range eligible {
		if s.usable(m, stage) {
			healthy = append(healthy, m)
		} else {
			sick = append(sick, m)
		}
	}

	var sel Selection
	pool := healthy
	if len(healthy) == 0 {
		pool = sick
		sel.Warnings = append(sel.Warnings,
			fmt.Sprintf("all candidate models for stage %s are unhealthy or circuit-open; using them anyway", stage))
	}

	ranked := s.rank(stage, p.Strategy, pool)
	ordered := make([]llm.ModelDescriptor, 0, len(ranked))
	for _, c := range ranked {
		if c.Model.ID == configured {
			ordered = append([]llm.ModelDescriptor{c.Model}, ordered...)
			continue
		}
		ordered = append(ordered, c.Model)
	}
	if configured != "" && ordered[0].ID != configured {
		sel.Warnings = append(sel.Warnings,
			fmt.Sprintf("configured model %s unavailable for stage %s; using %s", configured, stage, ordered[0].ID))
	}

	sel.Primary = ordered[0]
	rest := ordered[1:]
	if len(rest) > s.maxFallbacks {
		rest = rest[:s.maxFallbacks]
	}
	sel.Fallbacks = rest
	return sel, nil
}

// Rank scores every eligible model for stage, highest first.
func (s *Selector) Rank(stage Stage, p profile.Profile) ([]Scored, error) {
	eligible, err := s.eligible(stage, p, Budget{})
	if err != nil {
		return nil, err
	}
	return s.rank(stage, p.Strategy, eligible), nil
}

// eligible returns the capability-, constraint- and budget-filtered models.
// The configured model is exempt from allow/deny/where constraints.
func (s *Selector) eligible(stage Stage, p profile.Profile, budget Budget) ([]llm.ModelDescriptor, error) {
	patterns, err := llm.MatchPatterns(p.Allow, p.Deny)
	if err != nil {
		return nil, err
	}
	where, err := llm.Where(p.Where)
	if err != nil {
		return nil, err
	}
	configured := p.Models.For(string(stage))
	constraints := func(m llm.ModelDescriptor) bool {
		if m.ID == configured {
			return true
		}
		return patterns(m) && (where == nil || where(m))
	}

	fits := func(m llm.ModelDescriptor) bool {
		if budget.Remaining <= 0 {
			return true
		}
		return m.EstimateCost(budget.InputTokens, budget.OutputTokens) <= budget.Remaining
	}

	models := s.registry.List(llm.RequireCapabilities(llm.CapabilityChat), constraints, fits)

	// A configured model missing from the catalog is still callable; price it
	// at the fallback rate.
	if configured != "" {
		if _, err := s.registry.Get(configured); err != nil {
			m := llm.ModelDescriptor{
				ID:           configured,
				Provider:     llm.ProviderOf(configured),
				Tier:         llm.TierBalanced,
				Capabilities: []string{llm.CapabilityChat},
				Streaming:    true,
			}
			if fits(m) {
				models = append(models, m)
			}
		}
	}
	return models, nil
}

func (s *Selector) usable(m llm.ModelDescriptor, stage Stage) bool {
	if s.admission != nil && s.admission.Open(m.Provider) {
		return false
	}
	if s.perf != nil && s.perf.Health(m.ID, string(stage)).State == performance.Unhealthy {
		return false
	}
	return true
}

// rank scores candidates as
//
//	wq*tierWeight + wc/normCost + wl/normP95
//
// where each norm divides by the smallest positive value in the set, so the
// cheapest and fastest candidates score 1 on their axis. Missing latency
// data normalizes to 1.
func (s *Selector) rank(stage Stage, strategy profile.Strategy, models []llm.ModelDescriptor) []Scored {
	w := WeightsFor(strategy)

	costs := make([]float64, len(models))
	lats := make([]float64, len(models))
	for i, m := range models {
		costs[i] = m.EstimateCost(1_000_000, 1_000_000)
		if s.perf != nil {
			if h := s.perf.Health(m.ID, string(stage)); h.Samples > 0 {
				lats[i] = h.P95.Seconds()
			}
		}
	}
	minCost, minLat := minPositive(costs), minPositive(lats)

	scored := make([]Scored, len(models))
	for i, m := range models {
		score := w.Quality * m.Tier.Weight()
		score += w.Cost / normalize(costs[i], minCost)
		score += w.Latency / normalize(lats[i], minLat)
		scored[i] = Scored{Model: m, Score: score}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Model.ID < scored[j].Model.ID
	})
	return scored
}

func minPositive(values []float64) float64 {
	lowest := 0.0
	for _, v := range values {
		if v > 0 && (lowest == 0 || v < lowest) {
			lowest = v
		}
	}
	return lowest
}

func normalize(v, lowest float64) float64 {
	if v <= 0 || lowest <= 0 {
		return 1
	}
	return v / lowest
}
