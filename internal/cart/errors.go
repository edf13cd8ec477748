package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidItem is returned when an item definition fails validation.
	ErrInvalidItem = errors.New("invalid item")

	// ErrItemNotFound is returned when an operation names an unknown item.
	ErrItemNotFound = errors.New("item not found")

	// ErrConditionNotFound is returned when removing an unknown condition.
	ErrConditionNotFound = errors.New("condition not found")

	// ErrReservedMetadataKey is returned when a caller writes a metadata key
	// starting with ReservedMetadataPrefix.
	ErrReservedMetadataKey = errors.New("reserved metadata key")

	// ErrDynamicCondition is returned when a dynamic condition is attached
	// directly to an active set. Dynamic conditions go through the rule
	// engine, which materializes static copies.
	ErrDynamicCondition = errors.New("dynamic conditions cannot be attached directly; register them with the rule engine")
)

func invalidItem(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidItem, fmt.Sprintf(format, args...))
}
