package condition

import (
	"encoding/json"
	"math"
	"slices"
	"sort"
)

// Set is an ordered, name-unique collection of conditions.
//
// Put on an existing name replaces the condition in place, keeping its
// original insertion position.
type Set struct {
	byName map[string]*Condition
	names  []string
}

// NewSet returns a Set containing conds in the given order.
func NewSet(conds ...*Condition) *Set {
	s := &Set{byName: make(map[string]*Condition, len(conds))}
	for _, c := range conds {
		s.Put(c)
	}
	return s
}

// Put adds or replaces c.
func (s *Set) Put(c *Condition) {
	if s.byName == nil {
		s.byName = make(map[string]*Condition)
	}
	if _, ok := s.byName[c.Name()]; !ok {
		s.names = append(s.names, c.Name())
	}
	s.byName[c.Name()] = c
}

// Get returns the condition named name.
func (s *Set) Get(name string) (*Condition, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.byName[name]
	return c, ok
}

// Has reports whether a condition named name is present.
func (s *Set) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Remove deletes the condition named name and reports whether it existed.
func (s *Set) Remove(name string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.byName[name]; !ok {
		return false
	}
	delete(s.byName, name)
	s.names = slices.DeleteFunc(s.names, func(n string) bool { return n == name })
	return true
}

// Len returns the number of conditions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns condition names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.names)
}

// All returns the conditions in insertion order.
func (s *Set) All() []*Condition {
	if s == nil {
		return nil
	}
	out := make([]*Condition, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.byName[n])
	}
	return out
}

// Clone returns a shallow copy. Conditions are immutable and shared.
func (s *Set) Clone() *Set {
	if s == nil {
		return NewSet()
	}
	return NewSet(s.All()...)
}

// Filter returns a new Set holding the conditions for which keep is true.
func (s *Set) Filter(keep func(*Condition) bool) *Set {
	out := NewSet()
	for _, c := range s.All() {
		if keep(c) {
			out.Put(c)
		}
	}
	return out
}

// FilterByTarget returns the conditions adjusting target.
func (s *Set) FilterByTarget(target Target) *Set {
	return s.Filter(func(c *Condition) bool { return c.Target() == target })
}

// FilterByKind returns the conditions of the given type.
func (s *Set) FilterByKind(kind string) *Set {
	return s.Filter(func(c *Condition) bool { return c.Kind() == kind })
}

// Ordered returns the conditions sorted by Order ascending, ties broken by
// insertion order.
func (s *Set) Ordered() []*Condition {
	out := s.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order() < out[j].Order()
	})
	return out
}

// ReduceApply folds the conditions targeting target over initial, in
// Ordered sequence. A step producing a non-finite amount is skipped.
func (s *Set) ReduceApply(target Target, initial float64) float64 {
	return Fold(s.FilterByTarget(target).Ordered(), initial)
}

// Fold applies conds left to right starting from initial.
func Fold(conds []*Condition, initial float64) float64 {
	amount := initial
	for _, c := range conds {
		next := c.Apply(amount)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			continue
		}
		amount = next
	}
	return amount
}

// MarshalJSON encodes the set as a list in insertion order.
func (s *Set) MarshalJSON() ([]byte, error) {
	all := s.All()
	if all == nil {
		all = []*Condition{}
	}
	return json.Marshal(all)
}

// UnmarshalJSON decodes a list of static conditions.
func (s *Set) UnmarshalJSON(data []byte) error {
	var conds []*Condition
	if err := json.Unmarshal(data, &conds); err != nil {
		return err
	}
	*s = *NewSet(conds...)
	return nil
}
