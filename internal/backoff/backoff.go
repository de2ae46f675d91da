// Package backoff provides the bounded exponential-backoff-with-jitter
// spin used at the one place a producer may suspend: waiting for the
// writer to make room in a full ring.
//
// The shape is the same one stdx's xnet.Wait used for network-readiness
// polling (base * growth^attempt, clamped, +/- jitter) — reused here for
// a hot-path spin instead of a network probe.
package backoff

import (
	"math"
	"math/rand"
	"runtime"
	"time"
)

// Spinner drives a bounded number of busy-spin attempts followed by
// increasingly long sleeps, then gives up so the caller can decide the
// writer is unresponsive.
type Spinner struct {
	base    time.Duration
	max     time.Duration
	growth  float64
	spins   int // pure busy-spin attempts before any sleeping starts
	attempt int
}

// Default returns the Spinner used by the ring producer: a short run of
// pure spins (cheap, covers the common case of a writer that is merely a
// few instructions behind), then exponential sleep-backoff up to 2ms,
// capped at 64 sleep attempts after the 64 spins.
func Default() *Spinner {
	return &Spinner{
		base:   5 * time.Microsecond,
		max:    2 * time.Millisecond,
		growth: 1.7,
		spins:  64,
	}
}

// Next waits out one backoff step and reports whether the caller should
// keep trying. Once the internal attempt budget (spins + 64 sleep steps)
// is exhausted it returns false and the caller must treat the ring as
// stuck (writer dead or catastrophically slow).
func (s *Spinner) Next() bool {
	const maxSleepAttempts = 64
	if s.attempt < s.spins {
		s.attempt++
		runtime.Gosched()
		return true
	}
	sleepAttempt := s.attempt - s.spins
	if sleepAttempt >= maxSleepAttempts {
		return false
	}
	s.attempt++
	time.Sleep(s.delay(sleepAttempt))
	return true
}

// Reset rearms the spinner for a fresh wait.
func (s *Spinner) Reset() { s.attempt = 0 }

func (s *Spinner) delay(attempt int) time.Duration {
	d := time.Duration(float64(s.base) * math.Pow(s.growth, float64(attempt)))
	if d > s.max {
		d = s.max
	}
	if d <= 0 {
		return s.base
	}
	jitter := time.Duration(rand.Int63n(int64(d/2) + 1)) - d/4
	d += jitter
	if d < 0 {
		d = 0
	}
	return d
}
