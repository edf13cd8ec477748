package cart

import (
	"encoding/json"
	"maps"
	"math"
	"strings"

	"github.com/roach88/cartprice/internal/condition"
)

// ItemDefinition is the input used to construct an Item.
type ItemDefinition struct {
	ID         string                 `json:"id" yaml:"id"`
	Name       string                 `json:"name" yaml:"name"`
	Price      float64                `json:"price" yaml:"price"`
	Quantity   int                    `json:"quantity" yaml:"quantity"`
	Attributes map[string]any         `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Conditions []*condition.Condition `json:"conditions,omitempty" yaml:"-"`
	Associated string                 `json:"associated,omitempty" yaml:"associated,omitempty"`
}

// Item is an immutable cart line.
type Item struct {
	id         string
	name       string
	price      float64
	quantity   int
	attributes map[string]any
	conditions *condition.Set
	associated string
}

// NewItem validates def and builds an Item.
func NewItem(def ItemDefinition) (*Item, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, invalidItem("id cannot be empty")
	}
	if strings.TrimSpace(def.Name) == "" {
		return nil, invalidItem("name cannot be empty")
	}
	if math.IsNaN(def.Price) || math.IsInf(def.Price, 0) || def.Price < 0 {
		return nil, invalidItem("price must be a finite amount >= 0, got %v", def.Price)
	}
	if def.Quantity <= 0 {
		return nil, invalidItem("quantity must be positive, got %d", def.Quantity)
	}
	for _, c := range def.Conditions {
		if c.IsDynamic() {
			return nil, ErrDynamicCondition
		}
	}
	return &Item{
		id:         def.ID,
		name:       def.Name,
		price:      def.Price,
		quantity:   def.Quantity,
		attributes: maps.Clone(def.Attributes),
		conditions: condition.NewSet(def.Conditions...),
		associated: def.Associated,
	}, nil
}

func (it *Item) ID() string         { return it.id }
func (it *Item) Name() string       { return it.name }
func (it *Item) Price() float64     { return it.price }
func (it *Item) Quantity() int      { return it.quantity }
func (it *Item) Associated() string { return it.associated }

// Attributes returns a copy of the item's attributes.
func (it *Item) Attributes() map[string]any { return maps.Clone(it.attributes) }

// Attribute returns one attribute value.
func (it *Item) Attribute(key string) (any, bool) {
	v, ok := it.attributes[key]
	return v, ok
}

// Conditions returns a copy of the item's condition set.
func (it *Item) Conditions() *condition.Set { return it.conditions.Clone() }

// HasCondition reports whether a condition named name is attached.
func (it *Item) HasCondition(name string) bool { return it.conditions.Has(name) }

// Definition returns the definition reproducing it.
func (it *Item) Definition() ItemDefinition {
	return ItemDefinition{
		ID:         it.id,
		Name:       it.name,
		Price:      it.price,
		Quantity:   it.quantity,
		Attributes: maps.Clone(it.attributes),
		Conditions: it.conditions.All(),
		Associated: it.associated,
	}
}

func (it *Item) clone() *Item {
	cp := *it
	cp.attributes = maps.Clone(it.attributes)
	cp.conditions = it.conditions.Clone()
	return &cp
}

// WithQuantity returns a copy with quantity q. q must be positive; callers
// remove the item instead of setting a non-positive quantity.
func (it *Item) WithQuantity(q int) (*Item, error) {
	if q <= 0 {
		return nil, invalidItem("quantity must be positive, got %d", q)
	}
	cp := it.clone()
	cp.quantity = q
	return cp, nil
}

// WithPrice returns a copy with a new unit price.
func (it *Item) WithPrice(p float64) (*Item, error) {
	def := it.Definition()
	def.Price = p
	return NewItem(def)
}

// WithName returns a copy with a new name.
func (it *Item) WithName(name string) (*Item, error) {
	def := it.Definition()
	def.Name = name
	return NewItem(def)
}

// WithAttributes returns a copy whose attributes are merged with attrs.
func (it *Item) WithAttributes(attrs map[string]any) *Item {
	cp := it.clone()
	if cp.attributes == nil {
		cp.attributes = make(map[string]any, len(attrs))
	}
	maps.Copy(cp.attributes, attrs)
	return cp
}

// WithCondition returns a copy with c added or replaced. Dynamic
// conditions are rejected.
func (it *Item) WithCondition(c *condition.Condition) (*Item, error) {
	if c.IsDynamic() {
		return nil, ErrDynamicCondition
	}
	cp := it.clone()
	cp.conditions.Put(c)
	return cp, nil
}

// WithoutCondition returns a copy without the named condition and whether
// it was present.
func (it *Item) WithoutCondition(name string) (*Item, bool) {
	if !it.conditions.Has(name) {
		return it, false
	}
	cp := it.clone()
	cp.conditions.Remove(name)
	return cp, true
}

// MarshalJSON encodes the item with its static conditions.
func (it *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Definition())
}

// UnmarshalJSON decodes and validates an item.
func (it *Item) UnmarshalJSON(data []byte) error {
	var def ItemDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	parsed, err := NewItem(def)
	if err != nil {
		return err
	}
	*it = *parsed
	return nil
}
