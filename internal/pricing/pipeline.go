package pricing

import (
	"math"

	"github.com/roach88/cartprice/internal/condition"
)

// Line is one priced cart line.
type Line interface {
	ID() string
	Price() float64
	Quantity() int
	Conditions() *condition.Set
}

// ItemSubtotal folds the line's own conditions, then the cart-level
// item-target conditions, over the unit price and multiplies the result
// by the quantity.
func ItemSubtotal(line Line, cart *condition.Set) float64 {
	unit := condition.Fold(line.Conditions().Ordered(), line.Price())
	unit = cart.ReduceApply(condition.TargetItem, unit)
	return finite(unit*float64(line.Quantity()), 0)
}

// ItemSubtotalWithoutConditions returns price*quantity.
func ItemSubtotalWithoutConditions(line Line) float64 {
	return finite(line.Price()*float64(line.Quantity()), 0)
}

// SubtotalWithoutConditions sums price*quantity over lines.
func SubtotalWithoutConditions(lines []Line) float64 {
	var sum float64
	for _, l := range lines {
		sum += ItemSubtotalWithoutConditions(l)
	}
	return sum
}

// TotalWithoutConditions equals SubtotalWithoutConditions: no stage runs.
func TotalWithoutConditions(lines []Line) float64 {
	return SubtotalWithoutConditions(lines)
}

// Subtotal applies the cart's subtotal conditions to the sum of line
// subtotals.
func Subtotal(lines []Line, cart *condition.Set) float64 {
	var sum float64
	for _, l := range lines {
		sum += ItemSubtotal(l, cart)
	}
	return cart.ReduceApply(condition.TargetSubtotal, sum)
}

// Total applies the cart's total conditions to the subtotal.
func Total(lines []Line, cart *condition.Set) float64 {
	return cart.ReduceApply(condition.TargetTotal, Subtotal(lines, cart))
}

// Savings is max(0, subtotal without conditions - total).
func Savings(lines []Line, cart *condition.Set) float64 {
	return math.Max(0, SubtotalWithoutConditions(lines)-Total(lines, cart))
}

func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
