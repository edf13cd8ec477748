package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartprice/internal/condition"
)

type line struct {
	id    string
	price float64
	qty   int
	conds *condition.Set
}

func (l line) ID() string                 { return l.id }
func (l line) Price() float64             { return l.price }
func (l line) Quantity() int              { return l.qty }
func (l line) Conditions() *condition.Set { return l.conds }

func cond(name string, target condition.Target, value string) *condition.Condition {
	return condition.MustNew(condition.Definition{Name: name, Kind: "adjustment", Target: target, Value: value})
}

func TestItemSubtotal_ChainsPerUnitThenMultiplies(t *testing.T) {
	l := line{id: "a", price: 100, qty: 2, conds: condition.NewSet(
		cond("sale", condition.TargetItem, "-20%"),
		cond("engraving", condition.TargetItem, "+5"),
	)}

	assert.InDelta(t, 170.0, ItemSubtotal(l, nil), 1e-9)
	assert.InDelta(t, 200.0, ItemSubtotalWithoutConditions(l), 1e-9)
}

func TestItemSubtotal_CartItemConditionsApplyToEveryLine(t *testing.T) {
	cart := condition.NewSet(cond("clearance", condition.TargetItem, "-10%"))
	a := line{id: "a", price: 10, qty: 1}
	b := line{id: "b", price: 20, qty: 2}

	assert.InDelta(t, 9.0, ItemSubtotal(a, cart), 1e-9)
	assert.InDelta(t, 36.0, ItemSubtotal(b, cart), 1e-9)
}

func TestSubtotalAndTotal(t *testing.T) {
	lines := []Line{line{id: "a", price: 50, qty: 2}, line{id: "b", price: 100, qty: 1}}
	cart := condition.NewSet(
		cond("discount", condition.TargetSubtotal, "-10%"),
		cond("vat", condition.TargetTotal, "+15%"),
		cond("shipping", condition.TargetTotal, "+9.99"),
	)

	assert.InDelta(t, 180.0, Subtotal(lines, cart), 1e-9)
	assert.InDelta(t, 216.99, Total(lines, cart), 1e-9)
	assert.InDelta(t, 200.0, SubtotalWithoutConditions(lines), 1e-9)
	assert.InDelta(t, 200.0, TotalWithoutConditions(lines), 1e-9)
	assert.Equal(t, 0.0, Savings(lines, cart), "total exceeds raw subtotal")
}

func TestSavings(t *testing.T) {
	lines := []Line{line{id: "a", price: 40, qty: 1}}
	cart := condition.NewSet(cond("coupon", condition.TargetSubtotal, "-25%"))
	assert.InDelta(t, 10.0, Savings(lines, cart), 1e-9)
}

func TestPipeline_TotalsRounded(t *testing.T) {
	p := NewPipeline(MustCurrency("USD", -1))
	lines := []Line{line{id: "a", price: 200, qty: 1}}
	cart := condition.NewSet(
		cond("discount", condition.TargetSubtotal, "-10%"),
		cond("vat", condition.TargetTotal, "+15%"),
		cond("shipping", condition.TargetTotal, "+9.99"),
	)

	totals := p.Totals(lines, cart)
	assert.Equal(t, "USD", totals.Currency)
	assert.Equal(t, 180.0, totals.Subtotal)
	assert.Equal(t, 216.99, totals.Total)
	assert.Equal(t, 200.0, totals.SubtotalWithoutConditions)
	assert.Equal(t, 0.0, totals.Savings)
	require.Len(t, totals.Adjustments, 3)
	assert.Equal(t, Adjustment{Name: "discount", Kind: "adjustment", Target: "subtotal", Amount: -20}, totals.Adjustments[0])
	assert.Equal(t, 27.0, totals.Adjustments[1].Amount)
	assert.Equal(t, 9.99, totals.Adjustments[2].Amount)
	require.Len(t, totals.Lines, 1)
	assert.Equal(t, 200.0, totals.Lines[0].Subtotal)
}

func TestNewCurrency(t *testing.T) {
	usd, err := NewCurrency("usd", -1)
	require.NoError(t, err)
	assert.Equal(t, "USD", usd.Code())
	assert.Equal(t, 2, usd.Precision())

	jpy, err := NewCurrency("JPY", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, jpy.Precision())
	assert.Equal(t, 1235.0, jpy.Round(1234.5))

	custom, err := NewCurrency("EUR", 3)
	require.NoError(t, err)
	assert.Equal(t, 1.235, custom.Round(1.2345))

	def, err := NewCurrency("", -1)
	require.NoError(t, err)
	assert.Equal(t, "USD", def.Code())

	_, err = NewCurrency("NOPE", -1)
	assert.Error(t, err)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 2.68, Round(2.675, 2))
	assert.Equal(t, -1.5, Round(-1.45, 1))
	assert.Equal(t, 0.0, Round(0.001, 2))
}
