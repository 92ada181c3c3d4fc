// Package scheduler implements spec.md §4.4's ExpirationScheduler: one
// timer per tokenKey, firing a callback at the token's effective expiry
// instant.
package scheduler

import (
	"sync"
	"time"

	"github.com/hatchtoken/tokenmanager/internal/clock"
)

// maxTimerSpan caps the length of a single timer leg at 24 hours, well
// inside time.Duration's int64-nanosecond range. Longer delays are
// chained: the timer fires early, re-arms
// itself for the remainder, and only invokes the callback once the full
// delay has elapsed, honoring spec.md §4.4's "treat as an implementation
// detail obeying the invariant that expired fires within one scheduler
// tick of expiresAt_effective."
const maxTimerSpan = 24 * time.Hour

// FireFunc is invoked when a token's effective expiry instant arrives.
type FireFunc func(key string)

// Scheduler maintains one armed timer per tokenKey.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*chainedTimer
	clock  *clock.Clock
	onFire FireFunc
}

// New creates a Scheduler that calls onFire when a key's timer fires.
func New(c *clock.Clock, onFire FireFunc) *Scheduler {
	return &Scheduler{
		timers: map[string]*chainedTimer{},
		clock:  c,
		onFire: onFire,
	}
}

// chainedTimer re-arms itself across multiple time.Timer fires until the
// cumulative delay since arming reaches the target instant.
type chainedTimer struct {
	timer    *time.Timer
	canceled bool
}

// Arm (re-)schedules key to fire at effectiveExpiryUnix. Any existing
// timer for key is canceled first, honoring spec.md §3 invariant 2 (at
// most one active expiration timer per stored token).
func (s *Scheduler) Arm(key string, effectiveExpiryUnix int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)

	target := time.Unix(effectiveExpiryUnix, 0)
	ct := &chainedTimer{}
	s.timers[key] = ct
	s.scheduleLocked(key, ct, target)
}

// scheduleLocked arms (or re-arms) ct's underlying time.Timer for the
// next leg of the trip to target, clamping at maxTimerSpan.
func (s *Scheduler) scheduleLocked(key string, ct *chainedTimer, target time.Time) {
	delay := target.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	leg := delay
	final := true
	if leg > maxTimerSpan {
		leg = maxTimerSpan
		final = false
	}

	ct.timer = time.AfterFunc(leg, func() {
		s.mu.Lock()
		if ct.canceled {
			s.mu.Unlock()
			return
		}
		if final {
			delete(s.timers, key)
			s.mu.Unlock()
			s.onFire(key)
			return
		}
		s.scheduleLocked(key, ct, target)
		s.mu.Unlock()
	})
}

// Cancel stops key's timer, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(key)
}

func (s *Scheduler) cancelLocked(key string) {
	if ct, ok := s.timers[key]; ok {
		ct.canceled = true
		ct.timer.Stop()
		delete(s.timers, key)
	}
}

// CancelAll stops every armed timer, used when replacing the whole
// mapping (cross-tab reload) or tearing down the facade.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.timers {
		s.cancelLocked(key)
	}
}

// Armed reports whether key currently has an active timer, for tests.
func (s *Scheduler) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}
