package rules

import (
	"strings"

	"github.com/roach88/cartprice/internal/condition"
)

func metadataEquals(ctx Context) (condition.Predicate, error) {
	key, want := ctx.String("key"), ctx["value"]
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		v, ok := cart.Metadata(key)
		return ok && looseEqual(v, want), nil
	}, nil
}

func metadataIn(ctx Context) (condition.Predicate, error) {
	key, values := ctx.String("key"), ctx.Array("values")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		v, ok := cart.Metadata(key)
		if !ok {
			return false, nil
		}
		return containsLoose(values, v), nil
	}, nil
}

// metadataContains matches a substring of a string value or an element of
// a list value.
func metadataContains(ctx Context) (condition.Predicate, error) {
	key, want := ctx.String("key"), ctx["value"]
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		v, ok := cart.Metadata(key)
		if !ok {
			return false, nil
		}
		if s, isStr := v.(string); isStr {
			sub, subStr := want.(string)
			return subStr && strings.Contains(s, sub), nil
		}
		if list, isList := toSlice(v); isList {
			return containsLoose(list, want), nil
		}
		if m, isMap := v.(map[string]any); isMap {
			k, keyStr := want.(string)
			if !keyStr {
				return false, nil
			}
			_, has := m[k]
			return has, nil
		}
		return false, nil
	}, nil
}

func metadataFlagTrue(ctx Context) (condition.Predicate, error) {
	key := ctx.String("key")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		v, ok := cart.Metadata(key)
		return ok && truthy(v), nil
	}, nil
}

func containsLoose(list []any, v any) bool {
	for _, e := range list {
		if looseEqual(e, v) {
			return true
		}
	}
	return false
}
