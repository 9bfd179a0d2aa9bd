package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by storage implementations. Services translate
// them into the typed errors below before they reach a caller.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateName = errors.New("name already exists")

	// ErrUnrecognizedFormat is returned when a device payload matches neither
	// the single nor the batch movement shape, or matches both at once.
	ErrUnrecognizedFormat = errors.New("unrecognized payload format: expected a single or batch movement")
)

// ValidationError reports malformed or out-of-range input. Details carries
// every violation found, not just the first.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 1 {
		return e.Details[0]
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Details), strings.Join(e.Details, "; "))
}

// NewValidationError builds a ValidationError from one or more violations.
func NewValidationError(details ...string) *ValidationError {
	return &ValidationError{Details: details}
}

// NotFoundError reports a missing Product, Shelf or ShelfItem.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// ConflictError reports a case-insensitive name collision.
type ConflictError struct {
	Resource string
	Name     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with name %q already exists", e.Resource, e.Name)
}

// PersistenceError wraps a storage failure. Callers outside the package see
// it as an opaque failure; the wrapped cause is for logs only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
