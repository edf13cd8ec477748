package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/engine"
)

// RecordingSink keeps every emitted cart event in order.
type RecordingSink struct {
	mu     sync.Mutex
	events []cart.Event
}

// Emit implements cart.EventSink.
func (s *RecordingSink) Emit(_ context.Context, ev cart.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []cart.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Types returns the recorded event types in order.
func (s *RecordingSink) Types() []cart.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cart.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// Reset discards recorded events.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// FailureRecorder collects engine failures.
type FailureRecorder struct {
	mu       sync.Mutex
	failures []engine.Failure
}

// Handle is an engine.FailureHandler.
func (r *FailureRecorder) Handle(_ context.Context, f engine.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Failures returns a copy of the recorded failures.
func (r *FailureRecorder) Failures() []engine.Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.failures)
}
