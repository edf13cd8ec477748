package rules

import (
	"strings"

	"github.com/roach88/cartprice/internal/condition"
)

// itemScoped tests the item in scope, or any item when there is none.
func itemScoped(match func(condition.ItemState) bool) condition.Predicate {
	return func(cart condition.CartState, item condition.ItemState) (bool, error) {
		if item != nil {
			return match(item), nil
		}
		for _, it := range cart.ItemStates() {
			if match(it) {
				return true, nil
			}
		}
		return false, nil
	}
}

func itemAttributeEquals(ctx Context) (condition.Predicate, error) {
	attr, want := ctx.String("attribute"), ctx["value"]
	return itemScoped(func(it condition.ItemState) bool {
		v, ok := it.Attribute(attr)
		return ok && looseEqual(v, want)
	}), nil
}

func itemAttributeIn(ctx Context) (condition.Predicate, error) {
	attr, values := ctx.String("attribute"), ctx.Array("values")
	return itemScoped(func(it condition.ItemState) bool {
		v, ok := it.Attribute(attr)
		return ok && containsLoose(values, v)
	}), nil
}

func itemQuantityAtLeast(ctx Context) (condition.Predicate, error) {
	lo := ctx.Int("min")
	return itemScoped(func(it condition.ItemState) bool { return it.Quantity() >= lo }), nil
}

func itemQuantityAtMost(ctx Context) (condition.Predicate, error) {
	hi := ctx.Int("max")
	return itemScoped(func(it condition.ItemState) bool { return it.Quantity() <= hi }), nil
}

func itemPriceAtLeast(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return itemScoped(func(it condition.ItemState) bool { return it.Price() >= amt }), nil
}

func itemPriceAtMost(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return itemScoped(func(it condition.ItemState) bool { return it.Price() <= amt }), nil
}

func itemTotalAtLeast(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return itemScoped(func(it condition.ItemState) bool {
		return it.Price()*float64(it.Quantity()) >= amt
	}), nil
}

func itemTotalAtMost(ctx Context) (condition.Predicate, error) {
	amt := ctx.Float("amount")
	return itemScoped(func(it condition.ItemState) bool {
		return it.Price()*float64(it.Quantity()) <= amt
	}), nil
}

func itemHasCondition(ctx Context) (condition.Predicate, error) {
	name := ctx.String("condition")
	return itemScoped(func(it condition.ItemState) bool { return it.HasCondition(name) }), nil
}

func itemIDPrefix(ctx Context) (condition.Predicate, error) {
	prefix := ctx.String("prefix")
	return itemScoped(func(it condition.ItemState) bool { return strings.HasPrefix(it.ID(), prefix) }), nil
}
