package rules

import "time"

// Clock supplies wall-clock time to calendar rules.
//
// Calendar predicates never call time.Now directly; tests substitute a
// fixed clock for deterministic evaluation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
