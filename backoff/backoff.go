// Package backoff provides the retry delay strategies used by the connection
// client. Every strategy is a pure function of the attempt number.
package backoff

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before a retry attempt.
type Backoff interface {
	// Next returns the duration to wait before attempt number count.
	// The first retry passes count == 1.
	Next(count int64) time.Duration
}

// Default returns the default backoff strategy.
func Default() Backoff {
	return Exponential(time.Second, time.Minute)
}

// Linear grows the delay linearly: base * count.
func Linear(base time.Duration) Backoff {
	return linearBackoff{base: base}
}

// Exponential doubles the delay each attempt: base * 2^(count-1), capped at max.
func Exponential(base, max time.Duration) Backoff {
	return exponentialBackoff{base: base, max: max}
}

// Constant returns the same delay for every attempt.
func Constant(dur time.Duration) Backoff {
	return constantBackoff{duration: dur}
}

// Jitter wraps another strategy with a uniform ±frac spread, so a fleet of
// clients recovering from a shared outage does not retry in lockstep.
func Jitter(b Backoff, frac float64) Backoff {
	if frac <= 0 {
		return b
	}
	return jitterBackoff{inner: b, frac: frac}
}

type constantBackoff struct {
	duration time.Duration
}

func (b constantBackoff) Next(count int64) time.Duration {
	return b.duration
}

type linearBackoff struct {
	base time.Duration
}

func (b linearBackoff) Next(count int64) time.Duration {
	if count < 1 {
		count = 1
	}
	return b.base * time.Duration(count)
}

type exponentialBackoff struct {
	base time.Duration
	max  time.Duration
}

func (b exponentialBackoff) Next(count int64) time.Duration {
	if count < 1 {
		count = 1
	}
	d := b.base
	for i := int64(1); i < count; i++ {
		d *= 2
		if b.max > 0 && d >= b.max {
			return b.max
		}
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

type jitterBackoff struct {
	inner Backoff
	frac  float64
}

func (b jitterBackoff) Next(count int64) time.Duration {
	base := b.inner.Next(count)
	spread := 1 + b.frac*(2*rand.Float64()-1)
	return time.Duration(float64(base) * spread)
}
