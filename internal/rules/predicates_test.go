package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartprice/internal/condition"
)

func eval(t *testing.T, f *Factory, key Key, ctx Context, cart condition.CartState, it condition.ItemState) bool {
	t.Helper()
	ps, err := f.Create(key, ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	ok, err := ps[0](cart, it)
	require.NoError(t, err)
	return ok
}

func TestCartPredicates(t *testing.T) {
	f := NewFactory()
	cart := cartOf(item("a", 10, 2), item("b", 30, 1))
	cart.conditions["vat"] = true

	tests := []struct {
		key  Key
		ctx  Context
		want bool
	}{
		{MinItems, Context{"min": 2}, true},
		{MinItems, Context{"min": 3}, false},
		{MaxItems, Context{"max": 2}, true},
		{MaxItems, Context{"max": 1}, false},
		{MinQuantity, Context{"min": 3}, true},
		{MaxQuantity, Context{"max": 2}, false},
		{ItemsBetween, Context{"min": 1, "max": 2}, true},
		{SubtotalAtLeast, Context{"amount": 50.0}, true},
		{SubtotalAtLeast, Context{"amount": 50.01}, false},
		{SubtotalAtMost, Context{"amount": 50}, true},
		{SubtotalBetween, Context{"min": 0, "max": 49.99}, false},
		{TotalAtLeast, Context{"amount": 40}, true},
		{TotalAtMost, Context{"amount": 40}, false},
		{TotalBetween, Context{"min": 50, "max": 50}, true},
		{HasItem, Context{"id": "a"}, true},
		{HasItem, Context{"id": "z"}, false},
		{ItemListIncludesAny, Context{"ids": []any{"z", "b"}}, true},
		{ItemListIncludesAll, Context{"ids": []any{"a", "b"}}, true},
		{ItemListIncludesAll, Context{"ids": []string{"a", "z"}}, false},
		{CartHasCondition, Context{"condition": "vat"}, true},
		{CartHasCondition, Context{"condition": "shipping"}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, f, tt.key, tt.ctx, cart, nil))
		})
	}
}

func TestMetadataPredicates(t *testing.T) {
	f := NewFactory()
	cart := cartOf()
	cart.meta["tier"] = "gold"
	cart.meta["visits"] = float64(3)
	cart.meta["tags"] = []any{"vip", "eu"}
	cart.meta["newsletter"] = "yes"
	cart.meta["note"] = "gift wrap please"

	tests := []struct {
		name string
		key  Key
		ctx  Context
		want bool
	}{
		{"equals string", MetadataEquals, Context{"key": "tier", "value": "gold"}, true},
		{"equals number across types", MetadataEquals, Context{"key": "visits", "value": 3}, true},
		{"equals missing key", MetadataEquals, Context{"key": "absent", "value": "x"}, false},
		{"in", MetadataIn, Context{"key": "tier", "values": []any{"silver", "gold"}}, true},
		{"not in", MetadataIn, Context{"key": "tier", "values": []any{"silver"}}, false},
		{"contains substring", MetadataContains, Context{"key": "note", "value": "gift"}, true},
		{"contains element", MetadataContains, Context{"key": "tags", "value": "eu"}, true},
		{"contains missing element", MetadataContains, Context{"key": "tags", "value": "us"}, false},
		{"flag yes", MetadataFlagTrue, Context{"key": "newsletter"}, true},
		{"flag absent", MetadataFlagTrue, Context{"key": "absent"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, f, tt.key, tt.ctx, cart, nil))
		})
	}
}

func TestCalendarPredicates(t *testing.T) {
	// 2024-03-15 is a Friday.
	f := NewFactory(fixedAt("2024-03-15T23:30:00Z"))
	cart := cartOf()

	tests := []struct {
		name string
		key  Key
		ctx  Context
		want bool
	}{
		{"friday by name", DayOfWeek, Context{"days": []any{"Fri", "sat"}}, true},
		{"friday by number", DayOfWeek, Context{"days": []any{5}}, true},
		{"not monday", DayOfWeek, Context{"days": []any{"monday"}}, false},
		{"inclusive start", DateWindow, Context{"start": "2024-03-15", "end": "2024-03-20"}, true},
		{"inclusive end", DateWindow, Context{"start": "2024-03-01", "end": "2024-03-15"}, true},
		{"before start", DateWindow, Context{"start": "2024-03-16"}, false},
		{"open start", DateWindow, Context{"end": "2024-12-31"}, true},
		{"after end", DateWindow, Context{"end": "2024-03-14"}, false},
		{"plain window", TimeWindow, Context{"start": "09:00", "end": "17:00"}, false},
		{"wraps midnight", TimeWindow, Context{"start": "22:00", "end": "02:00"}, true},
		{"end exclusive", TimeWindow, Context{"start": "20:00", "end": "23:30"}, false},
		{"equal bounds is all day", TimeWindow, Context{"start": "00:00", "end": "00:00"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, f, tt.key, tt.ctx, cart, nil))
		})
	}
}

func TestCalendarPredicates_Location(t *testing.T) {
	// 23:30 UTC on Friday is already Saturday east of UTC.
	loc := time.FixedZone("JST", 9*60*60)
	f := NewFactory(fixedAt("2024-03-15T23:30:00Z"), WithLocation(loc))
	assert.True(t, eval(t, f, DayOfWeek, Context{"days": []any{"sat"}}, cartOf(), nil))
	assert.True(t, eval(t, f, DateWindow, Context{"start": "2024-03-16"}, cartOf(), nil))
}

func TestItemPredicates_InScope(t *testing.T) {
	f := NewFactory()
	shirt := item("sku-shirt", 25, 3)
	shirt.attrs["color"] = "red"
	shirt.conditions = map[string]bool{"promo": true}
	mug := item("mug", 8, 1)
	cart := cartOf(shirt, mug)

	tests := []struct {
		key  Key
		ctx  Context
		want bool
	}{
		{ItemAttributeEquals, Context{"attribute": "color", "value": "red"}, true},
		{ItemAttributeIn, Context{"attribute": "color", "values": []any{"blue"}}, false},
		{ItemQuantityAtLeast, Context{"min": 3}, true},
		{ItemQuantityAtMost, Context{"max": 2}, false},
		{ItemPriceAtLeast, Context{"amount": 25}, true},
		{ItemPriceAtMost, Context{"amount": 20}, false},
		{ItemTotalAtLeast, Context{"amount": 75}, true},
		{ItemTotalAtMost, Context{"amount": 70}, false},
		{ItemHasCondition, Context{"condition": "promo"}, true},
		{ItemIDPrefix, Context{"prefix": "sku-"}, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, f, tt.key, tt.ctx, cart, shirt))
		})
	}

	assert.False(t, eval(t, f, ItemIDPrefix, Context{"prefix": "sku-"}, cart, mug))
}

func TestItemPredicates_WithoutItemMatchAny(t *testing.T) {
	f := NewFactory()
	cart := cartOf(item("mug", 8, 1), item("sku-shirt", 25, 3))

	assert.True(t, eval(t, f, ItemIDPrefix, Context{"prefix": "sku-"}, cart, nil))
	assert.True(t, eval(t, f, ItemPriceAtMost, Context{"amount": 10}, cart, nil))
	assert.False(t, eval(t, f, ItemQuantityAtLeast, Context{"min": 4}, cart, nil))
	assert.False(t, eval(t, f, ItemIDPrefix, Context{"prefix": "x"}, cartOf(), nil))
}

func TestJSONLogic(t *testing.T) {
	f := NewFactory()
	cart := cartOf(item("a", 10, 2), item("b", 30, 1))
	cart.meta["tier"] = "gold"

	structured := Context{"logic": map[string]any{
		"and": []any{
			map[string]any{">=": []any{map[string]any{"var": "subtotal"}, 50}},
			map[string]any{"==": []any{map[string]any{"var": "metadata.tier"}, "gold"}},
		},
	}}
	assert.True(t, eval(t, f, JSONLogic, structured, cart, nil))

	asString := Context{"logic": `{">": [{"var": "item.quantity"}, 1]}`}
	assert.True(t, eval(t, f, JSONLogic, asString, cart, cart.items[0]))
	assert.False(t, eval(t, f, JSONLogic, asString, cart, cart.items[1]))
}

func TestExpression(t *testing.T) {
	f := NewFactory()
	cart := cartOf(item("a", 10, 2), item("b", 30, 1))
	cart.meta["tier"] = "gold"

	assert.True(t, eval(t, f, Expression, Context{"expr": `count == 2 && subtotal >= 50`}, cart, nil))
	assert.True(t, eval(t, f, Expression, Context{"expr": `metadata.tier == "gold"`}, cart, nil))
	assert.True(t, eval(t, f, Expression, Context{"expr": `any(items, .price > 20)`}, cart, nil))
	assert.False(t, eval(t, f, Expression, Context{"expr": `item?.quantity > 1`}, cart, cart.items[1]))
	assert.True(t, eval(t, f, Expression, Context{"expr": `item?.quantity > 1`}, cart, cart.items[0]))
}
