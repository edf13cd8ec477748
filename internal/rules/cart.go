package rules

import (
	"github.com/roach88/cartprice/internal/condition"
)

func quantity(cart condition.CartState) int {
	n := 0
	for _, it := range cart.ItemStates() {
		n += it.Quantity()
	}
	return n
}

func minItems(ctx Context) (condition.Predicate, error) {
	lo := ctx.Int("min")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return len(cart.ItemStates()) >= lo, nil
	}, nil
}

func maxItems(ctx Context) (condition.Predicate, error) {
	hi := ctx.Int("max")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return len(cart.ItemStates()) <= hi, nil
	}, nil
}

func itemsBetween(ctx Context) (condition.Predicate, error) {
	lo, hi := ctx.Int("min"), ctx.Int("max")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		n := len(cart.ItemStates())
		return n >= lo && n <= hi, nil
	}, nil
}

func minQuantity(ctx Context) (condition.Predicate, error) {
	lo := ctx.Int("min")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return quantity(cart) >= lo, nil
	}, nil
}

func maxQuantity(ctx Context) (condition.Predicate, error) {
	hi := ctx.Int("max")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return quantity(cart) <= hi, nil
	}, nil
}

// Monetary thresholds read the without-conditions figures.

func subtotalAtLeast(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return cart.SubtotalWithoutConditions() >= amt, nil
	}, nil
}

func subtotalAtMost(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return cart.SubtotalWithoutConditions() <= amt, nil
	}, nil
}

func subtotalBetween(ctx Context) (condition.Predicate, error) {
	lo, hi := ctx.Float("min"), ctx.Float("max")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		v := cart.SubtotalWithoutConditions()
		return v >= lo && v <= hi, nil
	}, nil
}

func totalAtLeast(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return cart.TotalWithoutConditions() >= amt, nil
	}, nil
}

func totalAtMost(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return cart.TotalWithoutConditions() <= amt, nil
	}, nil
}

func totalBetween(ctx Context) (condition.Predicate, error) {
	lo, hi := ctx.Float("min"), ctx.Float("max")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		v := cart.TotalWithoutConditions()
		return v >= lo && v <= hi, nil
	}, nil
}

func itemIDs(cart condition.CartState) map[string]bool {
	ids := make(map[string]bool)
	for _, it := range cart.ItemStates() {
		ids[it.ID()] = true
	}
	return ids
}

func hasItem(ctx Context) (condition.Predicate, error) {
	id := ctx.String("id")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return itemIDs(cart)[id], nil
	}, nil
}

func includesAny(ctx Context) (condition.Predicate, error) {
	want := ctx.Strings("ids")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		have := itemIDs(cart)
		for _, id := range want {
			if have[id] {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

func includesAll(ctx Context) (condition.Predicate, error) {
	want := ctx.Strings("ids")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		have := itemIDs(cart)
		for _, id := range want {
			if !have[id] {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

func cartHasCondition(ctx Context) (condition.Predicate, error) {
	name := ctx.String("condition")
	return func(cart condition.CartState, _ condition.ItemState) (bool, error) {
		return cart.HasCondition(name), nil
	}, nil
}
