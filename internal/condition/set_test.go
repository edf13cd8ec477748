package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cond(name string, target Target, value string, order int) *Condition {
	return MustNew(Definition{Name: name, Kind: "adjustment", Target: target, Value: value, Order: order})
}

func TestSet_PutGetRemove(t *testing.T) {
	s := NewSet()
	s.Put(cond("a", TargetSubtotal, "+1", 0))
	s.Put(cond("b", TargetTotal, "+2", 0))

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("a"))

	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "+2", got.Value().String())

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Equal(t, []string{"b"}, s.Names())
}

func TestSet_PutReplacesInPlace(t *testing.T) {
	s := NewSet(cond("a", TargetSubtotal, "+1", 0), cond("b", TargetSubtotal, "+2", 0))
	s.Put(cond("a", TargetSubtotal, "+9", 0))

	assert.Equal(t, []string{"a", "b"}, s.Names())
	got, _ := s.Get("a")
	assert.Equal(t, "+9", got.Value().String())
}

func TestSet_OrderedStableByInsertion(t *testing.T) {
	s := NewSet(
		cond("late", TargetSubtotal, "+1", 10),
		cond("first-tie", TargetSubtotal, "+1", 0),
		cond("early", TargetSubtotal, "+1", -5),
		cond("second-tie", TargetSubtotal, "+1", 0),
	)

	var names []string
	for _, c := range s.Ordered() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"early", "first-tie", "second-tie", "late"}, names)
}

func TestSet_Filters(t *testing.T) {
	s := NewSet(
		cond("a", TargetSubtotal, "+1", 0),
		cond("b", TargetTotal, "+1", 0),
		MustNew(Definition{Name: "c", Kind: "tax", Target: TargetTotal, Value: "+1"}),
	)

	assert.Equal(t, []string{"b", "c"}, s.FilterByTarget(TargetTotal).Names())
	assert.Equal(t, []string{"c"}, s.FilterByKind("tax").Names())
	assert.Equal(t, 3, s.Len(), "filtering does not modify the receiver")
}

func TestSet_ReduceApply(t *testing.T) {
	s := NewSet(
		cond("discount", TargetSubtotal, "-10%", 0),
		cond("vat", TargetTotal, "+15%", 0),
		cond("shipping", TargetTotal, "+9.99", 1),
	)

	subtotal := s.ReduceApply(TargetSubtotal, 200)
	assert.InDelta(t, 180.0, subtotal, 1e-9)
	assert.InDelta(t, 216.99, s.ReduceApply(TargetTotal, subtotal), 1e-9)
}

func TestSet_ReduceApplyRespectsOrder(t *testing.T) {
	// Reversed insertion: the multiplier still runs first because of its order.
	s := NewSet(
		cond("add", TargetSubtotal, "+10", 2),
		cond("double", TargetSubtotal, "*2", 1),
	)
	assert.InDelta(t, 210.0, s.ReduceApply(TargetSubtotal, 100), 1e-9)
}

func TestSet_NilIsEmpty(t *testing.T) {
	var s *Set
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("x"))
	assert.Equal(t, 5.0, s.ReduceApply(TargetTotal, 5))
	assert.Equal(t, 0, s.Clone().Len())
}

func TestSet_JSON(t *testing.T) {
	s := NewSet(cond("a", TargetSubtotal, "-5", 1), cond("b", TargetTotal, "+1%", 0))
	data, err := json.Marshal(s)
	require.NoError(t, err)

	decoded := NewSet()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, []string{"a", "b"}, decoded.Names())

	empty, err := json.Marshal(NewSet())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
