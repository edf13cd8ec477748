package pricing

import (
	"github.com/roach88/cartprice/internal/condition"
)

// Totals are the rounded figures for a cart.
type Totals struct {
	Currency                  string       `json:"currency" yaml:"currency"`
	Subtotal                  float64      `json:"subtotal" yaml:"subtotal"`
	Total                     float64      `json:"total" yaml:"total"`
	SubtotalWithoutConditions float64      `json:"subtotal_without_conditions" yaml:"subtotal_without_conditions"`
	TotalWithoutConditions    float64      `json:"total_without_conditions" yaml:"total_without_conditions"`
	Savings                   float64      `json:"savings" yaml:"savings"`
	Lines                     []LineTotal  `json:"lines" yaml:"lines"`
	Adjustments               []Adjustment `json:"adjustments" yaml:"adjustments"`
}

// LineTotal is the rounded breakdown for one line.
type LineTotal struct {
	ID                        string  `json:"id" yaml:"id"`
	Quantity                  int     `json:"quantity" yaml:"quantity"`
	Price                     float64 `json:"price" yaml:"price"`
	Subtotal                  float64 `json:"subtotal" yaml:"subtotal"`
	SubtotalWithoutConditions float64 `json:"subtotal_without_conditions" yaml:"subtotal_without_conditions"`
}

// Adjustment is the signed amount one cart-level condition contributed.
type Adjustment struct {
	Name   string  `json:"name" yaml:"name"`
	Kind   string  `json:"type" yaml:"type"`
	Target string  `json:"target" yaml:"target"`
	Amount float64 `json:"amount" yaml:"amount"`
}

// Pipeline rounds computed figures for a configured currency.
type Pipeline struct {
	currency Currency
}

// NewPipeline returns a Pipeline rounding to cur.
func NewPipeline(cur Currency) *Pipeline {
	return &Pipeline{currency: cur}
}

// Currency returns the configured currency.
func (p *Pipeline) Currency() Currency { return p.currency }

// Totals computes and rounds every figure for lines and cart conditions.
func (p *Pipeline) Totals(lines []Line, cart *condition.Set) Totals {
	round := p.currency.Round

	t := Totals{
		Currency:                  p.currency.Code(),
		SubtotalWithoutConditions: round(SubtotalWithoutConditions(lines)),
		TotalWithoutConditions:    round(TotalWithoutConditions(lines)),
		Lines:                     make([]LineTotal, 0, len(lines)),
		Adjustments:               []Adjustment{},
	}

	var itemsSum float64
	for _, l := range lines {
		sub := ItemSubtotal(l, cart)
		itemsSum += sub
		t.Lines = append(t.Lines, LineTotal{
			ID:                        l.ID(),
			Quantity:                  l.Quantity(),
			Price:                     round(l.Price()),
			Subtotal:                  round(sub),
			SubtotalWithoutConditions: round(ItemSubtotalWithoutConditions(l)),
		})
	}

	subtotal := p.adjust(&t, cart, condition.TargetSubtotal, itemsSum)
	total := p.adjust(&t, cart, condition.TargetTotal, subtotal)

	t.Subtotal = round(subtotal)
	t.Total = round(total)
	t.Savings = round(max(0, SubtotalWithoutConditions(lines)-total))
	return t
}

// adjust folds cart conditions for target over amount, recording each
// condition's contribution.
func (p *Pipeline) adjust(t *Totals, cart *condition.Set, target condition.Target, amount float64) float64 {
	for _, c := range cart.FilterByTarget(target).Ordered() {
		next := finite(c.Apply(amount), amount)
		t.Adjustments = append(t.Adjustments, Adjustment{
			Name:   c.Name(),
			Kind:   c.Kind(),
			Target: string(c.Target()),
			Amount: p.currency.Round(next - amount),
		})
		amount = next
	}
	return amount
}
