package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every settlement module. Services classify each
// failure before returning it; transports map the class to a response code.
var (
	// ErrNotFound indicates a referenced bill/session/note/schedule/vendor
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrStateConflict indicates an operation invalid for the entity's
	// current lifecycle state.
	ErrStateConflict = errors.New("invalid state for operation")
	// ErrBusinessRule indicates a domain rule rejection carrying a
	// human-readable reason.
	ErrBusinessRule = errors.New("business rule violation")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StateConflictf wraps ErrStateConflict with a formatted reason.
func StateConflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

// RuleViolationf wraps ErrBusinessRule with a formatted reason.
func RuleViolationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBusinessRule, fmt.Sprintf(format, args...))
}
