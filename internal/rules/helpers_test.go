package rules

import (
	"sort"
	"time"

	"github.com/roach88/cartprice/internal/condition"
)

type fakeItem struct {
	id, name   string
	price      float64
	qty        int
	attrs      map[string]any
	conditions map[string]bool
}

func (i *fakeItem) ID() string                       { return i.id }
func (i *fakeItem) Name() string                     { return i.name }
func (i *fakeItem) Price() float64                   { return i.price }
func (i *fakeItem) Quantity() int                    { return i.qty }
func (i *fakeItem) Attributes() map[string]any       { return i.attrs }
func (i *fakeItem) HasCondition(name string) bool    { return i.conditions[name] }
func (i *fakeItem) Attribute(key string) (any, bool) { v, ok := i.attrs[key]; return v, ok }

type fakeCart struct {
	items      []*fakeItem
	meta       map[string]any
	conditions map[string]bool
}

func (c *fakeCart) ItemStates() []condition.ItemState {
	out := make([]condition.ItemState, len(c.items))
	for i, it := range c.items {
		out[i] = it
	}
	return out
}

func (c *fakeCart) SubtotalWithoutConditions() float64 {
	var sum float64
	for _, it := range c.items {
		sum += it.price * float64(it.qty)
	}
	return sum
}

func (c *fakeCart) TotalWithoutConditions() float64 { return c.SubtotalWithoutConditions() }

func (c *fakeCart) Metadata(key string) (any, bool) {
	v, ok := c.meta[key]
	return v, ok
}

func (c *fakeCart) MetadataKeys() []string {
	keys := make([]string, 0, len(c.meta))
	for k := range c.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *fakeCart) HasCondition(name string) bool { return c.conditions[name] }

func item(id string, price float64, qty int) *fakeItem {
	return &fakeItem{id: id, name: id, price: price, qty: qty, attrs: map[string]any{}}
}

func cartOf(items ...*fakeItem) *fakeCart {
	return &fakeCart{items: items, meta: map[string]any{}, conditions: map[string]bool{}}
}

func fixedAt(s string) FactoryOption {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return WithClock(ClockFunc(func() time.Time { return t }))
}
