package cart

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartprice/internal/condition"
)

func TestNewItem_Validation(t *testing.T) {
	tests := []struct {
		name string
		def  ItemDefinition
	}{
		{"empty id", ItemDefinition{Name: "n", Price: 1, Quantity: 1}},
		{"empty name", ItemDefinition{ID: "i", Price: 1, Quantity: 1}},
		{"negative price", ItemDefinition{ID: "i", Name: "n", Price: -1, Quantity: 1}},
		{"nan price", ItemDefinition{ID: "i", Name: "n", Price: math.NaN(), Quantity: 1}},
		{"zero quantity", ItemDefinition{ID: "i", Name: "n", Price: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewItem(tt.def)
			assert.True(t, errors.Is(err, ErrInvalidItem), "got %v", err)
		})
	}
}

func TestItem_CopyOnWrite(t *testing.T) {
	orig, err := NewItem(ItemDefinition{ID: "a", Name: "A", Price: 10, Quantity: 1, Attributes: map[string]any{"size": "M"}})
	require.NoError(t, err)

	bigger, err := orig.WithQuantity(3)
	require.NoError(t, err)
	recolored := orig.WithAttributes(map[string]any{"color": "red"})
	promo := condition.MustNew(condition.Definition{Name: "promo", Kind: "discount", Target: condition.TargetItem, Value: "-1"})
	discounted, err := orig.WithCondition(promo)
	require.NoError(t, err)

	assert.Equal(t, 1, orig.Quantity())
	assert.Equal(t, 3, bigger.Quantity())
	assert.Equal(t, map[string]any{"size": "M"}, orig.Attributes())
	assert.Equal(t, map[string]any{"size": "M", "color": "red"}, recolored.Attributes())
	assert.False(t, orig.HasCondition("promo"))
	assert.True(t, discounted.HasCondition("promo"))

	plain, ok := discounted.WithoutCondition("promo")
	assert.True(t, ok)
	assert.False(t, plain.HasCondition("promo"))
	_, ok = plain.WithoutCondition("promo")
	assert.False(t, ok)

	_, err = orig.WithQuantity(0)
	assert.True(t, errors.Is(err, ErrInvalidItem))
}

func TestItem_RejectsDynamicCondition(t *testing.T) {
	it, err := NewItem(ItemDefinition{ID: "a", Name: "A", Price: 1, Quantity: 1})
	require.NoError(t, err)

	dyn := condition.MustNew(condition.Definition{
		Name: "d", Kind: "discount", Target: condition.TargetItem, Value: "-1",
		Rules: []condition.Predicate{func(condition.CartState, condition.ItemState) (bool, error) { return true, nil }},
	})
	_, err = it.WithCondition(dyn)
	assert.ErrorIs(t, err, ErrDynamicCondition)
}

func TestItem_JSON(t *testing.T) {
	promo := condition.MustNew(condition.Definition{Name: "promo", Kind: "discount", Target: condition.TargetItem, Value: "-10%"})
	it, err := NewItem(ItemDefinition{ID: "a", Name: "A", Price: 9.5, Quantity: 2, Conditions: []*condition.Condition{promo}})
	require.NoError(t, err)

	data, err := json.Marshal(it)
	require.NoError(t, err)

	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "a", back.ID())
	assert.Equal(t, 2, back.Quantity())
	assert.True(t, back.HasCondition("promo"))

	assert.Error(t, json.Unmarshal([]byte(`{"id":"a","name":"A","price":1,"quantity":0}`), &back))
}
