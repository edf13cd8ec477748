package condition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is matched by every construction-time validation
	// failure. Use errors.Is to test for it and errors.As with
	// *DefinitionError to read the offending field.
	ErrInvalidDefinition = errors.New("invalid condition definition")

	// ErrInvalidValue reports a value expression that cannot be parsed to a
	// finite magnitude.
	ErrInvalidValue = errors.New("invalid condition value")
)

// DefinitionError describes which field of a condition definition was
// rejected.
type DefinitionError struct {
	// Field is the definition field at fault ("name", "type", "target", "value").
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", ErrInvalidDefinition, e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidDefinition, e.Field, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidDefinition as a match so callers can use errors.Is.
func (e *DefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

func invalidField(field, message string) *DefinitionError {
	return &DefinitionError{Field: field, Message: message}
}

// IsDefinitionError returns true if err is a condition definition failure.
// Uses errors.As to handle wrapped errors.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}
