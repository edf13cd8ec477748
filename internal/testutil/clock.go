package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable wall clock for calendar rules.
//
// Unlike rules.SystemClock, FixedClock only moves when told to, so date
// and time window rules evaluate identically on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// MustParseClock creates a clock stopped at an RFC 3339 timestamp.
// Panics on a malformed timestamp.
func MustParseClock(ts string) *FixedClock {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return NewFixedClock(t)
}

// Now implements rules.Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
