package clock

import (
	"testing"
	"time"
)

func TestNewFixed(t *testing.T) {
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixed(ref, 1500)

	got := c.Now()
	want := ref.Add(1500 * time.Millisecond)
	if !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}

	if c.OffsetMillis() != 1500 {
		t.Fatalf("OffsetMillis() = %d, want 1500", c.OffsetMillis())
	}
}

func TestNowIsStable(t *testing.T) {
	ref := time.Unix(1000000000, 0)
	c := NewFixed(ref, 0)
	if c.Now() != c.Now() {
		t.Fatalf("fixed clock should be stable across calls")
	}
	if c.Unix() != 1000000000 {
		t.Fatalf("Unix() = %d, want 1000000000", c.Unix())
	}
}

func TestNilClockFallsBackToRealTime(t *testing.T) {
	var c *Clock
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Fatalf("nil clock did not fall back to time.Now()")
	}
}
