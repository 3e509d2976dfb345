package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// ErrRateLimited is returned when a provider's token bucket is empty and
// the caller chose not to wait.
var ErrRateLimited = errors.New("provider rate limit reached")

// ProviderLimit is a token-bucket configuration for one provider.
type ProviderLimit struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`

	// Burst is the bucket size.
	Burst int `yaml:"burst" json:"burst"`
}

// DefaultProviderLimit is applied to providers without explicit limits.
var DefaultProviderLimit = ProviderLimit{RequestsPerMinute: 60, Burst: 10}

func (l ProviderLimit) limiter() *rate.Limiter {
	if l.RequestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(l.RequestsPerMinute)/60.0), burst)
}

// RateLimiter holds one token bucket per provider. Buckets are created
// lazily; each rate.Limiter synchronizes itself so providers never share a
// lock beyond the map lookup.
type RateLimiter struct {
	defaults  ProviderLimit
	overrides map[string]ProviderLimit

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter with per-provider overrides.
func NewRateLimiter(defaults ProviderLimit, overrides map[string]ProviderLimit) *RateLimiter {
	ov := make(map[string]ProviderLimit, len(overrides))
	for k, v := range overrides {
		ov[k] = v
	}
	return &RateLimiter{
		defaults:  defaults,
		overrides: ov,
		buckets:   make(map[string]*rate.Limiter),
	}
}

func (r *RateLimiter) bucket(provider string) *rate.Limiter {
	r.mu.RLock()
	b, ok := r.buckets[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[provider]; ok {
		return b
	}
	limit, ok := r.overrides[provider]
	if !ok {
		limit = r.defaults
	}
	b = limit.limiter()
	r.buckets[provider] = b
	return b
}

// TryAcquire takes a token for provider if one is available.
func (r *RateLimiter) TryAcquire(provider string) bool {
	return r.bucket(provider).Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, provider string) error {
	if err := r.bucket(provider).Wait(ctx); err != nil {
		return fmt.Errorf("waiting for %s rate limit: %w", provider, err)
	}
	return nil
}

// Admission combines the rate limiter and circuit breaker into the single
// gate consulted before every gateway call.
type Admission struct {
	Limiter *RateLimiter
	Breaker *CircuitBreaker
}

// NewAdmission creates an admission gate. A nil limiter or breaker disables
// that check.
func NewAdmission(limiter *RateLimiter, breaker *CircuitBreaker) *Admission {
	return &Admission{Limiter: limiter, Breaker: breaker}
}

// TryAcquire admits a call without waiting. It returns ErrCircuitOpen or
// ErrRateLimited when the call must not proceed.
func (a *Admission) TryAcquire(provider string) error {
	if a.Breaker != nil {
		if err := a.Breaker.Peek(provider); err != nil {
			return err
		}
	}
	if a.Limiter != nil && !a.Limiter.TryAcquire(provider) {
		return ErrRateLimited
	}
	if a.Breaker != nil {
		return a.Breaker.Allow(provider)
	}
	return nil
}

// Acquire admits a call, waiting for a rate-limit token if needed. An open
// circuit fails immediately without waiting.
func (a *Admission) Acquire(ctx context.Context, provider string) error {
	if a.Breaker != nil {
		if err := a.Breaker.Peek(provider); err != nil {
			return err
		}
	}
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx, provider); err != nil {
			return err
		}
	}
	if a.Breaker != nil {
		return a.Breaker.Allow(provider)
	}
	return nil
}

// Report records the outcome of an admitted call. Errors that say nothing
// about provider health (bad credentials, an unknown model, cancellation)
// neither close nor open the circuit; a half-open trial ending that way is
// released for the next caller.
func (a *Admission) Report(provider string, err error) {
	if a.Breaker == nil {
		return
	}
	switch {
	case err == nil:
		a.Breaker.RecordSuccess(provider)
	case countsAsFailure(err):
		a.Breaker.RecordFailure(provider)
	default:
		a.Breaker.ReleaseTrial(provider)
	}
}

func countsAsFailure(err error) bool {
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindAuth, pkgerrors.KindModelUnavailable,
		pkgerrors.KindBudgetExceeded, pkgerrors.KindCancelled:
		return false
	}
	return true
}

// Open reports whether provider's circuit currently rejects calls.
func (a *Admission) Open(provider string) bool {
	return a.Breaker != nil && a.Breaker.Peek(provider) != nil
}
