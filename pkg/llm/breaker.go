package llm

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the circuit breaker is open for a provider.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState is the breaker state of one provider.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// Window bounds how far apart the last FailureThreshold consecutive
	// failures may be. It slides with each failure.
	Window time.Duration

	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration

	// CooldownMultiplier extends the cooldown each time a trial call fails.
	CooldownMultiplier float64

	// MaxCooldown caps the extended cooldown.
	MaxCooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:   5,
		Window:             60 * time.Second,
		Cooldown:           30 * time.Second,
		CooldownMultiplier: 2.0,
		MaxCooldown:        10 * time.Minute,
	}
}

// CircuitStatus is a point-in-time view of one provider's circuit.
type CircuitStatus struct {
	Provider            string        `json:"provider"`
	State               CircuitState  `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenUntil           time.Time     `json:"open_until,omitempty"`
	Cooldown            time.Duration `json:"cooldown"`
}

// providerCircuit holds the state of one provider behind its own lock.
type providerCircuit struct {
	mu           sync.Mutex
	state        CircuitState
	failures     int
	recent       []time.Time // last FailureThreshold failure times, oldest first
	openUntil    time.Time
	cooldown     time.Duration
	trialPending bool
}

// CircuitBreaker tracks a circuit per provider. Providers never contend on
// each other's locks; the outer lock only guards the provider map.
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.RWMutex
	circuits map[string]*providerCircuit
}

// NewCircuitBreaker creates a breaker. Zero config fields take defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.CooldownMultiplier < 1 {
		cfg.CooldownMultiplier = def.CooldownMultiplier
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = def.MaxCooldown
		if cfg.MaxCooldown < cfg.Cooldown {
			cfg.MaxCooldown = cfg.Cooldown
		}
	}
	return &CircuitBreaker{
		cfg:      cfg,
		now:      time.Now,
		circuits: make(map[string]*providerCircuit),
	}
}

func (cb *CircuitBreaker) circuit(provider string) *providerCircuit {
	cb.mu.RLock()
	c, ok := cb.circuits[provider]
	cb.mu.RUnlock()
	if ok {
		return c
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok = cb.circuits[provider]; !ok {
		c = &providerCircuit{state: CircuitClosed, cooldown: cb.cfg.Cooldown}
		cb.circuits[provider] = c
	}
	return c
}

// Allow reports whether a call to provider may proceed. When the cooldown of
// an open circuit has elapsed the circuit moves to half-open and exactly one
// caller is admitted as the trial; everyone else gets ErrCircuitOpen until
// the trial's outcome is recorded.
func (cb *CircuitBreaker) Allow(provider string) error {
	c := cb.circuit(provider)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		if cb.now().Before(c.openUntil) {
			return ErrCircuitOpen
		}
		c.state = CircuitHalfOpen
		c.trialPending = true
		return nil
	case CircuitHalfOpen:
		if c.trialPending {
			return ErrCircuitOpen
		}
		c.trialPending = true
		return nil
	default:
		return nil
	}
}

// Peek reports whether Allow would currently reject provider, without
// claiming a half-open trial.
func (cb *CircuitBreaker) Peek(provider string) error {
	c := cb.circuit(provider)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		if cb.now().Before(c.openUntil) {
			return ErrCircuitOpen
		}
	case CircuitHalfOpen:
		if c.trialPending {
			return ErrCircuitOpen
		}
	}
	return nil
}

// RecordSuccess closes the circuit and resets the cooldown.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	c := cb.circuit(provider)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = CircuitClosed
	c.failures = 0
	c.recent = c.recent[:0]
	c.openUntil = time.Time{}
	c.cooldown = cb.cfg.Cooldown
	c.trialPending = false
}

// RecordFailure counts a failed call. A failed half-open trial reopens the
// circuit with an extended cooldown.
func (cb *CircuitBreaker) RecordFailure(provider string) {
	c := cb.circuit(provider)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := cb.now()
	switch c.state {
	case CircuitHalfOpen:
		next := time.Duration(float64(c.cooldown) * cb.cfg.CooldownMultiplier)
		if next > cb.cfg.MaxCooldown {
			next = cb.cfg.MaxCooldown
		}
		c.cooldown = next
		c.state = CircuitOpen
		c.openUntil = now.Add(c.cooldown)
		c.trialPending = false
		c.failures++
	case CircuitOpen:
		c.failures++
	default:
		c.failures++
		if len(c.recent) == cb.cfg.FailureThreshold {
			c.recent = append(c.recent[:0], c.recent[1:]...)
		}
		c.recent = append(c.recent, now)
		if len(c.recent) == cb.cfg.FailureThreshold && now.Sub(c.recent[0]) <= cb.cfg.Window {
			c.state = CircuitOpen
			c.openUntil = now.Add(c.cooldown)
			c.recent = c.recent[:0]
		}
	}
}

// ReleaseTrial gives up a half-open trial whose outcome says nothing about
// the provider's health. The circuit stays half-open and the next caller
// becomes the trial. It has no effect in any other state.
func (cb *CircuitBreaker) ReleaseTrial(provider string) {
	c := cb.circuit(provider)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CircuitHalfOpen {
		c.trialPending = false
	}
}

// State returns the current state of provider's circuit. An open circuit
// whose cooldown has elapsed reports half-open.
func (cb *CircuitBreaker) State(provider string) CircuitState {
	cb.mu.RLock()
	c, ok := cb.circuits[provider]
	cb.mu.RUnlock()
	if !ok {
		return CircuitClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CircuitOpen && !cb.now().Before(c.openUntil) {
		return CircuitHalfOpen
	}
	return c.state
}

// Status returns the status of every provider seen so far, sorted by name.
func (cb *CircuitBreaker) Status() []CircuitStatus {
	cb.mu.RLock()
	names := make([]string, 0, len(cb.circuits))
	for name := range cb.circuits {
		names = append(names, name)
	}
	cb.mu.RUnlock()
	sort.Strings(names)

	out := make([]CircuitStatus, 0, len(names))
	for _, name := range names {
		c := cb.circuit(name)
		c.mu.Lock()
		st := CircuitStatus{
			Provider:            name,
			State:               c.state,
			ConsecutiveFailures: c.failures,
			OpenUntil:           c.openUntil,
			Cooldown:            c.cooldown,
		}
		if st.State == CircuitOpen && !cb.now().Before(c.openUntil) {
			st.State = CircuitHalfOpen
		}
		c.mu.Unlock()
		out = append(out, st)
	}
	return out
}
