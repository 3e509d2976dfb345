package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// MaxRetryAfter caps how long a provider's Retry-After hint is honoured.
const MaxRetryAfter = 60 * time.Second

// RetryPolicy configures retries against the same model with exponential
// backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per model, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (typically 2.0 for exponential).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (0.0-1.0).
	Jitter float64

	// rand returns values in [0, 1). Tests replace it for reproducible delays.
	rand func() float64
}

// DefaultRetryPolicy returns 3 attempts, 500ms base delay and an 8s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// WithRand returns a copy of the policy using fn as its jitter source.
func (p RetryPolicy) WithRand(fn func() float64) RetryPolicy {
	p.rand = fn
	return p
}

// Attempts returns MaxAttempts, never less than one.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	backoff := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	// backoff * (1 ± jitter)
	if p.Jitter > 0 {
		rnd := p.rand
		if rnd == nil {
			rnd = rand.Float64
		}
		amount := backoff * p.Jitter
		backoff += rnd()*2*amount - amount
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}

// Delay returns how long to wait before retrying after err. A provider
// Retry-After hint replaces the computed backoff.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	var rl *pkgerrors.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		if rl.RetryAfter > MaxRetryAfter {
			return MaxRetryAfter
		}
		return rl.RetryAfter
	}
	return p.Backoff(attempt)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
