package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Context parameterizes a rule. It is persisted next to the factory keys,
// so values must be JSON-encodable.
type Context map[string]any

// FieldKind is the type a context field must have.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInt
	FieldFloat
	FieldArray
	FieldAny
)

// String returns the kind name used in error messages.
func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldArray:
		return "array"
	default:
		return "any"
	}
}

// Field declares one context field a rule key reads.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Optional bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
}

func required(name string, kind FieldKind) Field { return Field{Name: name, Kind: kind} }
func optional(name string, kind FieldKind) Field {
	return Field{Name: name, Kind: kind, Optional: true}
}

// validate checks ctx against fields and the min/max ordering.
func validate(key Key, fields []Field, ctx Context) error {
	for _, f := range fields {
		v, ok := ctx[f.Name]
		if !ok || v == nil {
			if f.Optional {
				continue
			}
			return contextError(key, f.Name, "missing required %s field", f.Kind)
		}
		if !kindMatches(f.Kind, v) {
			return contextError(key, f.Name, "expected %s, got %T", f.Kind, v)
		}
	}

	lo, hasLo := ctx["min"]
	hi, hasHi := ctx["max"]
	if hasLo && hasHi {
		l, _ := toFloat(lo)
		h, _ := toFloat(hi)
		if h < l {
			return contextError(key, "max", "max (%v) must be >= min (%v)", hi, lo)
		}
	}
	return nil
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldInt:
		_, ok := toInt(v)
		return ok
	case FieldFloat:
		_, ok := toFloat(v)
		return ok
	case FieldArray:
		_, ok := toSlice(v)
		return ok
	default:
		return true
	}
}

// String returns a string field. Callers validate first.
func (c Context) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Int returns an integer field.
func (c Context) Int(name string) int {
	n, _ := toInt(c[name])
	return n
}

// Float returns a numeric field.
func (c Context) Float(name string) float64 {
	f, _ := toFloat(c[name])
	return f
}

// Array returns an array field as []any.
func (c Context) Array(name string) []any {
	s, _ := toSlice(c[name])
	return s
}

// Strings returns an array field with each element formatted as a string.
func (c Context) Strings(name string) []string {
	arr := c.Array(name)
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = fmt.Sprint(v)
	}
	return out
}

// Has reports whether a non-nil value is set for name.
func (c Context) Has(name string) bool {
	v, ok := c[name]
	return ok && v != nil
}

// Clone returns a shallow copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case float32:
		return toInt(float64(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return toFloat(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is a string, not an array.
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// looseEqual compares values that may have travelled through JSON or YAML:
// numbers compare numerically, strings case-sensitively, everything else
// structurally.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

// truthy mirrors the usual loose boolean interpretation of flags.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	if s, ok := toSlice(v); ok {
		return len(s) > 0
	}
	if m, ok := v.(map[string]any); ok {
		return len(m) > 0
	}
	return true
}
