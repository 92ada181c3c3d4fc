// Package clock provides the token manager's notion of "now", adjusted by
// a configurable server-clock offset.
package clock

import "time"

// Clock reports the current time, adjusted by a fixed offset between the
// local machine's clock and the server's clock. A positive offset means
// the local clock trails the server; adding it, as Now does, moves local
// time forward to approximate server time.
type Clock struct {
	offset time.Duration
	now    func() time.Time
}

// New creates a Clock with the given local/server offset in milliseconds
// (spec.md's localClockOffset). Positive values mean the local clock
// trails the server.
func New(offsetMillis int64) *Clock {
	return &Clock{
		offset: time.Duration(offsetMillis) * time.Millisecond,
		now:    time.Now,
	}
}

// Now returns the current time adjusted by the configured offset.
func (c *Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c.now().Add(c.offset)
}

// Unix returns Now() truncated to UNIX seconds, the unit expiresAt is
// expressed in.
func (c *Clock) Unix() int64 {
	return c.Now().Unix()
}

// OffsetMillis returns the configured offset in milliseconds.
func (c *Clock) OffsetMillis() int64 {
	return int64(c.offset / time.Millisecond)
}

// withNow returns a copy of c that reads time from fn instead of
// time.Now. Used by tests to pin the clock to deterministic instants.
func withNow(c *Clock, fn func() time.Time) *Clock {
	return &Clock{offset: c.offset, now: fn}
}

// NewFixed creates a Clock that always reports t (plus offsetMillis),
// for deterministic tests.
func NewFixed(t time.Time, offsetMillis int64) *Clock {
	c := New(offsetMillis)
	return withNow(c, func() time.Time { return t })
}
