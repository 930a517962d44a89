package jobq

import (
	"math"
	"time"
)

// DefaultBackoffBase is the exponent base used when none is configured.
const DefaultBackoffBase = 2.0

// Backoff computes the delay before a failed job becomes eligible again.
// Delay(n) = Base^n seconds, where n is the 1-indexed attempt that just failed.
type Backoff struct {
	// Base is the exponent base. NaN or values <= 0 fall back to DefaultBackoffBase.
	Base float64
	// Max caps the delay. Zero leaves it unbounded.
	Max time.Duration
}

// Delay returns the wait after the given failed attempt.
func (b Backoff) Delay(attempts int) time.Duration {
	base := b.Base
	if base <= 0 || math.IsNaN(base) {
		base = DefaultBackoffBase
	}
	secs := math.Pow(base, float64(attempts))
	var d time.Duration
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		d = time.Duration(math.MaxInt64)
	} else {
		d = time.Duration(secs * float64(time.Second))
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
