package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator is the arithmetic operation an Expression applies.
type Operator byte

const (
	OpAdd      Operator = '+'
	OpSubtract Operator = '-'
	OpMultiply Operator = '*'
	OpDivide   Operator = '/'
)

// String returns the operator symbol.
func (o Operator) String() string {
	return string(o)
}

// Expression is a parsed condition value such as "-10%" or "*1.5".
type Expression struct {
	source     string
	op         Operator
	magnitude  float64
	percentage bool
}

// ParseExpression parses a condition value.
//
// The leading character selects the operator (default OpAdd). A trailing
// "%" marks the magnitude as a percentage of the base amount. Non-numeric
// input parses as magnitude 0; non-finite input (INF, NAN, 1e309) is
// rejected with ErrInvalidValue.
func ParseExpression(src string) (Expression, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return Expression{}, fmt.Errorf("%w: empty value", ErrInvalidValue)
	}

	e := Expression{source: s, op: OpAdd}
	switch Operator(s[0]) {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		e.op = Operator(s[0])
		s = strings.TrimSpace(s[1:])
	}

	if strings.HasSuffix(s, "%") {
		e.percentage = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	f, err := strconv.ParseFloat(s, 64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Expression{}, fmt.Errorf("%w: %q is not finite", ErrInvalidValue, src)
	}
	if err != nil {
		// Permissive: garbage is magnitude zero.
		f = 0
	}
	e.magnitude = f
	return e, nil
}

// MustParseExpression is like ParseExpression but panics on error.
func MustParseExpression(src string) Expression {
	e, err := ParseExpression(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Operator returns the parsed operator.
func (e Expression) Operator() Operator { return e.op }

// Magnitude returns the unsigned parsed number.
func (e Expression) Magnitude() float64 { return e.magnitude }

// IsPercentage reports whether the magnitude is relative to the base.
func (e Expression) IsPercentage() bool { return e.percentage }

// String returns the normalized source text.
func (e Expression) String() string { return e.source }

// Signed returns the effective numeric value: negated for OpSubtract,
// the raw magnitude otherwise.
func (e Expression) Signed() float64 {
	if e.op == OpSubtract {
		return -e.magnitude
	}
	return e.magnitude
}

// Apply applies the expression to base. Division by zero returns base.
func (e Expression) Apply(base float64) float64 {
	switch e.op {
	case OpSubtract:
		return base - e.delta(base)
	case OpMultiply:
		return base * e.magnitude
	case OpDivide:
		if e.magnitude == 0 {
			return base
		}
		return base / e.magnitude
	default:
		return base + e.delta(base)
	}
}

func (e Expression) delta(base float64) float64 {
	if e.percentage {
		return base * e.magnitude / 100
	}
	return e.magnitude
}
