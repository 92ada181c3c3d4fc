package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/hatchtoken/tokenmanager/internal/clock"
)

func TestArmFiresAtEffectiveExpiry(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	done := make(chan struct{}, 1)

	c := clock.New(0)
	s := New(c, func(key string) {
		mu.Lock()
		fired = append(fired, key)
		mu.Unlock()
		done <- struct{}{}
	})

	s.Arm("k", c.Unix()+0) // already due

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for expiration fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "k" {
		t.Fatalf("fired = %v, want [k]", fired)
	}
}

func TestCancelPreventsFire(t *testing.T) {
	fired := make(chan string, 1)
	c := clock.New(0)
	s := New(c, func(key string) { fired <- key })

	s.Arm("k", c.Unix()) // due immediately
	s.Cancel("k")

	select {
	case k := <-fired:
		t.Fatalf("unexpected fire for %q after Cancel", k)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRearmReplacesPriorTimer(t *testing.T) {
	fired := make(chan string, 4)
	c := clock.New(0)
	s := New(c, func(key string) { fired <- key })

	s.Arm("k", c.Unix()+5) // far in the future
	s.Arm("k", c.Unix())   // immediately due, replaces the prior timer

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for re-armed timer")
	}

	select {
	case k := <-fired:
		t.Fatalf("unexpected second fire for %q; original timer should have been canceled", k)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCancelAllStopsEveryTimer(t *testing.T) {
	fired := make(chan string, 4)
	c := clock.New(0)
	s := New(c, func(key string) { fired <- key })

	s.Arm("a", c.Unix())
	s.Arm("b", c.Unix())
	s.CancelAll()

	select {
	case k := <-fired:
		t.Fatalf("unexpected fire for %q after CancelAll", k)
	case <-time.After(150 * time.Millisecond):
	}

	if s.Armed("a") || s.Armed("b") {
		t.Fatal("expected no timers armed after CancelAll")
	}
}
