package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency is used when no currency code is configured.
const DefaultCurrency = "USD"

// Currency carries the ISO code and minor-unit precision amounts are
// rounded to.
type Currency struct {
	unit      currency.Unit
	precision int
}

// NewCurrency resolves code through the ISO 4217 tables. A negative
// precision selects the currency's standard minor-unit scale.
func NewCurrency(code string, precision int) (Currency, error) {
	if strings.TrimSpace(code) == "" {
		code = DefaultCurrency
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Currency{}, fmt.Errorf("currency %q: %w", code, err)
	}
	if precision < 0 {
		precision, _ = currency.Standard.Rounding(unit)
	}
	return Currency{unit: unit, precision: precision}, nil
}

// MustCurrency is like NewCurrency but panics on error.
func MustCurrency(code string, precision int) Currency {
	c, err := NewCurrency(code, precision)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the ISO 4217 code.
func (c Currency) Code() string {
	if c.unit == (currency.Unit{}) {
		return DefaultCurrency
	}
	return c.unit.String()
}

// Precision returns the number of decimal places amounts are rounded to.
func (c Currency) Precision() int { return c.precision }

// Round rounds amount half away from zero to the currency precision.
func (c Currency) Round(amount float64) float64 {
	return Round(amount, c.precision)
}

// Round rounds amount to places decimal places using decimal arithmetic,
// so 2.675 rounds to 2.68 rather than the binary float's 2.67.
func Round(amount float64, places int) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return decimal.NewFromFloat(amount).Round(int32(places)).InexactFloat64()
}
