package queue

import (
	"math/rand"
	"time"

	"github.com/ignite/outreach-control/internal/domain"
)

// RetryPolicy is the pure attempt -> (backoff, terminal?) function (§4.3).
type RetryPolicy struct {
	Base    time.Duration
	Ceiling time.Duration
	Jitter  float64
	MaxAttempts int
}

// DefaultRetryPolicy matches the spec's stated defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        60 * time.Second,
		Ceiling:     3600 * time.Second,
		Jitter:      0.2,
		MaxAttempts: 8,
	}
}

// baseFor returns the base delay for an error class, overriding the policy
// default for gmail_429 (§4.3: "starts at a longer base, e.g. 300s").
func (p RetryPolicy) baseFor(code domain.SendErrorCode) time.Duration {
	if code == domain.ErrGmail429 {
		return 300 * time.Second
	}
	return p.Base
}

// Backoff computes the delay before the given attempt (1-indexed) for the
// given error class, with full jitter: base * 2^(attempt-1) * (1 +/- jitter),
// clamped to the ceiling.
func (p RetryPolicy) Backoff(attempt int, code domain.SendErrorCode) time.Duration {
	return p.backoffRand(attempt, code, rand.Float64)
}

// backoffRand takes an injectable random source for deterministic tests.
func (p RetryPolicy) backoffRand(attempt int, code domain.SendErrorCode, randFloat func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.baseFor(code)
	multiplier := 1 << uint(attempt-1)
	raw := float64(base) * float64(multiplier)

	// full jitter in [-j, +j]
	jitter := (randFloat()*2 - 1) * p.Jitter
	raw *= 1 + jitter

	d := time.Duration(raw)
	if d > p.Ceiling {
		d = p.Ceiling
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Terminal reports whether attempt has exhausted the retry budget, or
// whether code is one of the error classes that never retries (§4.3:
// gmail_400, auth, policy, gate are terminal on the first occurrence).
func (p RetryPolicy) Terminal(attempt int, code domain.SendErrorCode) bool {
	if domain.IsTerminalError(code) {
		return true
	}
	return attempt >= p.MaxAttempts
}
