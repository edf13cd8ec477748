package cart

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/pricing"
)

// ReservedMetadataPrefix marks metadata keys owned by the library.
const ReservedMetadataPrefix = "__"

// Cart is a read-only snapshot of a cart's items, conditions and metadata.
// It implements condition.CartState for rule predicates.
type Cart struct {
	id         Identity
	items      []*Item
	conditions *condition.Set
	metadata   map[string]json.RawMessage
}

// NewCart builds a snapshot. Slices and maps are copied.
func NewCart(id Identity, items []*Item, conds *condition.Set, meta map[string]json.RawMessage) *Cart {
	m := make(map[string]json.RawMessage, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	return &Cart{
		id:         id,
		items:      slices.Clone(items),
		conditions: conds.Clone(),
		metadata:   m,
	}
}

// Identity returns the cart's storage key.
func (c *Cart) Identity() Identity { return c.id }

// Items returns the items in insertion order.
func (c *Cart) Items() []*Item { return slices.Clone(c.items) }

// Item returns the item with the given id.
func (c *Cart) Item(id string) (*Item, bool) {
	for _, it := range c.items {
		if it.ID() == id {
			return it, true
		}
	}
	return nil, false
}

// Conditions returns a copy of the cart-level condition set.
func (c *Cart) Conditions() *condition.Set { return c.conditions.Clone() }

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Count returns the total quantity across items.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity()
	}
	return n
}

// Lines adapts the items for the pricing pipeline.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.items))
	for i, it := range c.items {
		lines[i] = it
	}
	return lines
}

// ItemStates implements condition.CartState.
func (c *Cart) ItemStates() []condition.ItemState {
	states := make([]condition.ItemState, len(c.items))
	for i, it := range c.items {
		states[i] = it
	}
	return states
}

// SubtotalWithoutConditions implements condition.CartState.
func (c *Cart) SubtotalWithoutConditions() float64 {
	return pricing.SubtotalWithoutConditions(c.Lines())
}

// TotalWithoutConditions implements condition.CartState.
func (c *Cart) TotalWithoutConditions() float64 {
	return pricing.TotalWithoutConditions(c.Lines())
}

// Metadata implements condition.CartState. Values are decoded from their
// stored JSON form; numbers come back as float64.
func (c *Cart) Metadata(key string) (any, bool) {
	raw, ok := c.metadata[key]
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// MetadataKeys implements condition.CartState. Reserved keys (prefixed
// "__") are internal bookkeeping and are not listed.
func (c *Cart) MetadataKeys() []string {
	keys := make([]string, 0, len(c.metadata))
	for k := range c.metadata {
		if strings.HasPrefix(k, ReservedMetadataPrefix) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// RawMetadata returns the stored JSON for key.
func (c *Cart) RawMetadata(key string) (json.RawMessage, bool) {
	raw, ok := c.metadata[key]
	return raw, ok
}

// HasCondition implements condition.CartState.
func (c *Cart) HasCondition(name string) bool { return c.conditions.Has(name) }
