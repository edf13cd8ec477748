package harness

import (
	"math"
	"slices"
)

const tolerance = 1e-9

// check records every unmet expectation on r.
func (e Expectation) check(r *Result, count int) {
	money := []struct {
		name string
		want *float64
		got  float64
	}{
		{"subtotal", e.Subtotal, r.Totals.Subtotal},
		{"total", e.Total, r.Totals.Total},
		{"savings", e.Savings, r.Totals.Savings},
	}
	for _, m := range money {
		if m.want != nil && math.Abs(*m.want-m.got) > tolerance {
			r.addError("%s: expected %v, got %v", m.name, *m.want, m.got)
		}
	}

	if e.Count != nil && *e.Count != count {
		r.addError("count: expected %d, got %d", *e.Count, count)
	}
	for _, name := range e.Conditions {
		if !slices.Contains(r.Conditions, name) {
			r.addError("condition %q: expected active, active set is %v", name, r.Conditions)
		}
	}
	for _, name := range e.Absent {
		if slices.Contains(r.Conditions, name) {
			r.addError("condition %q: expected absent", name)
		}
	}
	for _, ev := range e.Events {
		if !slices.Contains(r.Events, ev) {
			r.addError("event %q: not emitted", ev)
		}
	}
	if e.Failures != nil && *e.Failures != len(r.Failures) {
		r.addError("failures: expected %d, got %d %v", *e.Failures, len(r.Failures), r.Failures)
	}
}
