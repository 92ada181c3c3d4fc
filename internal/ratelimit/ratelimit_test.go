package ratelimit

import (
	"testing"
	"time"
)

func TestFirstNineAttemptsAlwaysAllowed(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)
	for i := 0; i < 9; i++ {
		allowed, tripped := l.Attempt(base.Add(time.Duration(i) * 2 * time.Second))
		if !allowed || tripped {
			t.Fatalf("attempt %d: allowed=%v tripped=%v, want true,false", i, allowed, tripped)
		}
	}
}

func TestTenthAttemptWithinThirtySecondsTrips(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)

	var lastAllowed, lastTripped bool
	for i := 0; i < 10; i++ {
		lastAllowed, lastTripped = l.Attempt(base.Add(time.Duration(i) * 2 * time.Second))
	}

	if lastAllowed || !lastTripped {
		t.Fatalf("10th attempt: allowed=%v tripped=%v, want false,true", lastAllowed, lastTripped)
	}
}

func TestResumesAfterGapWidensSpanPastThreshold(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)

	// First 10 attempts at 2s spacing: spans 18s, trips on the 10th.
	renewed := 0
	for i := 0; i < 10; i++ {
		allowed, _ := l.Attempt(base.Add(time.Duration(i) * 2 * time.Second))
		if allowed {
			renewed++
		}
	}
	if renewed != 9 {
		t.Fatalf("renewed = %d, want 9", renewed)
	}

	// 10 more attempts after a 50s gap, at 5s spacing: never trips again.
	start := base.Add(18*time.Second + 50*time.Second)
	renewed = 0
	for i := 0; i < 10; i++ {
		allowed, tripped := l.Attempt(start.Add(time.Duration(i) * 5 * time.Second))
		if allowed {
			renewed++
		}
		if tripped {
			t.Fatalf("unexpected trip at post-gap attempt %d", i)
		}
	}
	if renewed != 10 {
		t.Fatalf("renewed = %d, want 10", renewed)
	}
}

func TestResetClearsWindow(t *testing.T) {
	l := New()
	base := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		l.Attempt(base.Add(time.Duration(i) * 2 * time.Second))
	}
	l.Reset()

	allowed, tripped := l.Attempt(base)
	if !allowed || tripped {
		t.Fatalf("after Reset: allowed=%v tripped=%v, want true,false", allowed, tripped)
	}
}
