package ratelimit

import (
	"math/rand"
	"time"
)

// Backoff computes exponentially growing durations between Min and Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool
}

func NewBackoff(min, max time.Duration, factor float64) *Backoff {
	return &Backoff{
		Min:    min,
		Max:    max,
		Factor: factor,
		Jitter: true,
	}
}

// Duration returns the wait for the given 1-based attempt. With jitter the
// result lies in [d/2, d].
func (b *Backoff) Duration(attempt int) time.Duration {
	if attempt <= 0 {
		return b.Min
	}

	duration := float64(b.Min)
	for i := 1; i < attempt && duration < float64(b.Max); i++ {
		duration *= b.Factor
	}

	if duration > float64(b.Max) {
		duration = float64(b.Max)
	}

	if b.Jitter {
		duration = duration * (0.5 + rand.Float64()*0.5)
	}

	return time.Duration(duration)
}
