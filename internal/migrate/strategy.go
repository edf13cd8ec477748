package migrate

import (
	"fmt"
	"slices"
)

// Strategy resolves an item present in both carts.
type Strategy string

const (
	// AddQuantities sums both quantities.
	AddQuantities Strategy = "add_quantities"

	// KeepHighestQuantity keeps the larger quantity.
	KeepHighestQuantity Strategy = "keep_highest_quantity"

	// KeepUserCart keeps the user's line and drops the guest's.
	KeepUserCart Strategy = "keep_user_cart"

	// ReplaceWithGuest replaces the user's line with the guest's.
	ReplaceWithGuest Strategy = "replace_with_guest"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = AddQuantities

// Strategies lists every supported strategy.
var Strategies = []Strategy{AddQuantities, KeepHighestQuantity, KeepUserCart, ReplaceWithGuest}

// ParseStrategy validates s. An empty string yields DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return DefaultStrategy, nil
	}
	st := Strategy(s)
	if !slices.Contains(Strategies, st) {
		return "", fmt.Errorf("unknown merge strategy %q", s)
	}
	return st, nil
}

// resolveQuantity returns the merged quantity and whether the guest line
// replaces the user's line.
func (s Strategy) resolveQuantity(user, guest int) (qty int, useGuest bool) {
	switch s {
	case KeepHighestQuantity:
		return max(user, guest), false
	case KeepUserCart:
		return user, false
	case ReplaceWithGuest:
		return guest, true
	default:
		return user + guest, false
	}
}
