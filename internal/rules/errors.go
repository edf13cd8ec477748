package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a malformed rule context or registration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownFactoryKey reports a key with no registered builder.
	ErrUnknownFactoryKey = errors.New("unknown factory key")
)

// ContextError describes a context field that failed validation.
type ContextError struct {
	Key     Key
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: rule %q: %s", ErrInvalidArgument, e.Key, e.Message)
	}
	return fmt.Sprintf("%s: rule %q: field %q: %s", ErrInvalidArgument, e.Key, e.Field, e.Message)
}

// Is reports ErrInvalidArgument as a match.
func (e *ContextError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func contextError(key Key, field, format string, args ...any) *ContextError {
	return &ContextError{Key: key, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsUnknownKey returns true if err reports an unregistered factory key.
func IsUnknownKey(err error) bool {
	return errors.Is(err, ErrUnknownFactoryKey)
}
