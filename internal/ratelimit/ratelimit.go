// Package ratelimit implements spec.md §4.6's RenewRateLimiter: a
// sliding window over the timestamps of the last windowSize
// expired-driven renewal attempts, tripping when they're packed into
// less than minSpan.
package ratelimit

import "time"

// Policy constants named in spec.md §4.6.
const (
	WindowSize = 10
	MinSpan    = 30 * time.Second
)

// Limiter tracks the timestamps of the last WindowSize renewal attempts
// triggered by the ExpirationScheduler's expired event (manual renew()
// calls from the facade's own API are not subject to this policy).
type Limiter struct {
	window []time.Time // oldest first, capped at WindowSize
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{}
}

// Attempt records a renewal attempt at t and reports whether it should
// proceed (true) or be suppressed (false) because the last WindowSize
// attempts — including this one — span less than MinSpan.
func (l *Limiter) Attempt(t time.Time) (allowed bool, tripped bool) {
	l.window = append(l.window, t)
	if len(l.window) > WindowSize {
		l.window = l.window[len(l.window)-WindowSize:]
	}

	if len(l.window) < WindowSize {
		return true, false
	}

	span := l.window[len(l.window)-1].Sub(l.window[0])
	if span < MinSpan {
		return false, true
	}
	return true, false
}

// Reset clears the tracked window, for tests and for explicit facade
// teardown.
func (l *Limiter) Reset() {
	l.window = nil
}
