package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/rules"
)

// Re-exported so callers need not import rules to match registration errors.
var (
	ErrInvalidArgument   = rules.ErrInvalidArgument
	ErrUnknownFactoryKey = rules.ErrUnknownFactoryKey
)

// RegistrationError reports a rejected Register call.
type RegistrationError struct {
	// Code identifies the error category.
	Code RegistrationErrorCode

	// Message is a human-readable description.
	Message string

	// Condition names the condition being registered.
	Condition string
}

// RegistrationErrorCode categorizes registration errors.
type RegistrationErrorCode string

const (
	// ErrCodeNotDynamic indicates the resolved condition has no rules.
	ErrCodeNotDynamic RegistrationErrorCode = "NOT_DYNAMIC"

	// ErrCodeInvalidSource indicates a rules source that cannot be resolved.
	ErrCodeInvalidSource RegistrationErrorCode = "INVALID_SOURCE"
)

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Condition != "" {
		return fmt.Sprintf("%s: %s (condition=%s)", e.Code, e.Message, e.Condition)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches ErrInvalidArgument.
func (e *RegistrationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// IsNotDynamic returns true if err rejected a condition without rules.
// Uses errors.As to handle wrapped errors.
func IsNotDynamic(err error) bool {
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNotDynamic
	}
	return false
}

// Operation names the engine step a failure happened in.
type Operation string

const (
	OpEvaluate Operation = "evaluate"
	OpRestore  Operation = "restore"
)

// Failure describes a recoverable error inside evaluation or restoration.
// It is delivered to the FailureHandler instead of being returned.
type Failure struct {
	Operation Operation

	// Cart is the cart being processed.
	Cart cart.Identity

	// Name is the condition name. Condition is nil when restoration failed
	// before the condition could be rebuilt.
	Name      string
	Condition *condition.Condition

	// ItemID is set for item-targeted evaluation failures.
	ItemID string

	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (f Failure) Error() string {
	if f.ItemID != "" {
		return fmt.Sprintf("%s %s (cart=%s, item=%s): %v", f.Operation, f.Name, f.Cart, f.ItemID, f.Err)
	}
	return fmt.Sprintf("%s %s (cart=%s): %v", f.Operation, f.Name, f.Cart, f.Err)
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error { return f.Err }
