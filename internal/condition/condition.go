package condition

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Target identifies which amount a condition adjusts.
type Target string

const (
	TargetSubtotal Target = "subtotal"
	TargetTotal    Target = "total"
	TargetItem     Target = "item"
)

// Valid reports whether t is one of the known targets.
func (t Target) Valid() bool {
	switch t {
	case TargetSubtotal, TargetTotal, TargetItem:
		return true
	}
	return false
}

// Definition is the mutable input used to construct a Condition.
type Definition struct {
	Name       string         `json:"name" yaml:"name"`
	Kind       string         `json:"type" yaml:"type"`
	Target     Target         `json:"target" yaml:"target"`
	Value      string         `json:"value" yaml:"value"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Order      int            `json:"order,omitempty" yaml:"order,omitempty"`
	Rules      []Predicate    `json:"-" yaml:"-"`
}

// Condition is an immutable, named price adjustment.
type Condition struct {
	name       string
	kind       string
	target     Target
	value      Expression
	attributes map[string]any
	order      int
	rules      []Predicate
}

// New validates d and returns the resulting Condition. Validation failures
// are *DefinitionError values matching ErrInvalidDefinition.
func New(d Definition) (*Condition, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, invalidField("name", "condition name cannot be empty")
	}
	if strings.TrimSpace(d.Kind) == "" {
		return nil, invalidField("type", "condition type cannot be empty")
	}
	if strings.TrimSpace(string(d.Target)) == "" {
		return nil, invalidField("target", "condition target cannot be empty")
	}
	if !d.Target.Valid() {
		return nil, invalidField("target", fmt.Sprintf("condition target %q must be one of subtotal, total, item", d.Target))
	}
	if strings.TrimSpace(d.Value) == "" {
		return nil, invalidField("value", "condition value cannot be empty")
	}
	expr, err := ParseExpression(d.Value)
	if err != nil {
		return nil, &DefinitionError{Field: "value", Message: "condition value must be a finite number", Err: err}
	}

	return &Condition{
		name:       d.Name,
		kind:       d.Kind,
		target:     d.Target,
		value:      expr,
		attributes: maps.Clone(d.Attributes),
		order:      d.Order,
		rules:      append([]Predicate(nil), d.Rules...),
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(d Definition) *Condition {
	c, err := New(d)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Condition) Name() string       { return c.name }
func (c *Condition) Kind() string       { return c.kind }
func (c *Condition) Target() Target     { return c.target }
func (c *Condition) Value() Expression  { return c.value }
func (c *Condition) Order() int         { return c.order }
func (c *Condition) Rules() []Predicate { return append([]Predicate(nil), c.rules...) }

// Attributes returns a copy of the condition's metadata.
func (c *Condition) Attributes() map[string]any {
	return maps.Clone(c.attributes)
}

// Attribute returns a single metadata value.
func (c *Condition) Attribute(key string) (any, bool) {
	v, ok := c.attributes[key]
	return v, ok
}

// Definition returns the definition that reproduces c.
func (c *Condition) Definition() Definition {
	return Definition{
		Name:       c.name,
		Kind:       c.kind,
		Target:     c.target,
		Value:      c.value.String(),
		Attributes: maps.Clone(c.attributes),
		Order:      c.order,
		Rules:      c.Rules(),
	}
}

// Apply applies the condition's value to base.
func (c *Condition) Apply(base float64) float64 {
	return c.value.Apply(base)
}

// CalculatedValue returns the signed adjustment Apply makes to base.
func (c *Condition) CalculatedValue(base float64) float64 {
	return c.Apply(base) - base
}

// IsDiscount reports whether the effective value is negative.
func (c *Condition) IsDiscount() bool {
	return c.value.Signed() < 0
}

// IsCharge reports whether the effective value is non-negative.
func (c *Condition) IsCharge() bool {
	return !c.IsDiscount()
}

// IsDynamic reports whether the condition carries rule predicates.
func (c *Condition) IsDynamic() bool {
	return len(c.rules) > 0
}

// ShouldApply evaluates the rules against cart (and item, for item-scoped
// evaluation). Static conditions always apply. All rules must hold; the
// first error aborts evaluation.
func (c *Condition) ShouldApply(cart CartState, item ItemState) (bool, error) {
	for i, rule := range c.rules {
		ok, err := rule(cart, item)
		if err != nil {
			return false, fmt.Errorf("condition %q rule %d: %w", c.name, i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// WithoutRules returns a static copy of c.
func (c *Condition) WithoutRules() *Condition {
	cp := *c
	cp.attributes = maps.Clone(c.attributes)
	cp.rules = nil
	return &cp
}

// Changes lists the fields With overrides. Nil fields are left unchanged.
type Changes struct {
	Name       *string
	Kind       *string
	Target     *Target
	Value      *string
	Attributes map[string]any
	Order      *int
	Rules      []Predicate
	ClearRules bool
}

// With returns a new Condition with the given fields overridden. The result
// is validated like New.
func (c *Condition) With(ch Changes) (*Condition, error) {
	d := c.Definition()
	if ch.Name != nil {
		d.Name = *ch.Name
	}
	if ch.Kind != nil {
		d.Kind = *ch.Kind
	}
	if ch.Target != nil {
		d.Target = *ch.Target
	}
	if ch.Value != nil {
		d.Value = *ch.Value
	}
	if ch.Attributes != nil {
		d.Attributes = ch.Attributes
	}
	if ch.Order != nil {
		d.Order = *ch.Order
	}
	if ch.Rules != nil {
		d.Rules = ch.Rules
	}
	if ch.ClearRules {
		d.Rules = nil
	}
	return New(d)
}

// MarshalJSON encodes the static part of the condition. Rules never
// serialize.
func (c *Condition) MarshalJSON() ([]byte, error) {
	d := c.Definition()
	d.Rules = nil
	return json.Marshal(d)
}

// UnmarshalJSON decodes and validates a static condition.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := New(d)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}
