// Package backoff provides pluggable retry delay strategies for step
// re-invocation. All strategies are stateless and safe for concurrent use.
//
// The engine default is None: the core retry loop mandates no delay, and
// any backoff policy is an explicit caller choice.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// None retries immediately with no delay.
type None struct{}

// Delay always returns zero.
func (None) Delay(int) time.Duration { return 0 }

// Fixed waits the same interval before every retry.
type Fixed struct {
	Interval time.Duration
}

// NewFixed creates a fixed-interval strategy.
func NewFixed(interval time.Duration) Fixed {
	return Fixed{Interval: interval}
}

// Delay returns the fixed interval.
func (f Fixed) Delay(int) time.Duration { return f.Interval }

// Exponential doubles the delay each attempt, capped at Max, with
// optional full jitter. With jitter the delay is a random value in
// [0, min(Initial * 2^(attempt-1), Max)], which avoids thundering herd
// when many retries fire together.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) Exponential {
	return Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) Exponential {
	return Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns the (possibly jittered) exponential delay for attempt n.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if e.Jitter {
		return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(base)
}

// Default returns the strategy the engine uses when none is configured.
func Default() Strategy { return None{} }
