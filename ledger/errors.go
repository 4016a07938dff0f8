/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on categories with errors.Is and read details with errors.As.

ERROR CATEGORIES:
  1. Validation errors - user-correctable input (field + bound)
  2. Not found errors  - referenced supply/purchase/supplier is missing
  3. Storage errors    - persistence failures, always fully rolled back

USAGE:
  if errors.Is(err, ledger.ErrValidation) {
      var vErr *ledger.ValidationError
      errors.As(err, &vErr)
      for _, f := range vErr.Fields { ... f.Bound ... }
  }

SEE ALSO:
  - validator.go: Produces ValidationError
  - engine.go:    Wraps store failures in StorageError
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input breaks a field rule or a chain invariant.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage is returned when the backing store fails.
	ErrStorage = errors.New("storage failure")

	// ErrLockNotObtained is returned when a chain lock cannot be acquired.
	ErrLockNotObtained = errors.New("chain lock not obtained")
)

// Validation codes carried by FieldError.Code.
const (
	CodeRequired         = "required"
	CodeNotNumeric       = "not_numeric"
	CodeNotPositive      = "not_positive"
	CodeNegative         = "negative"
	CodeExceedsAvailable = "exceeds_available"
	CodeInvalidDate      = "invalid_date"
	CodeImmutable        = "immutable"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError describes one offending field.
type FieldError struct {
	Field   string
	Code    string
	Message string
	Value   string
	// Bound is the computed limit the value broke, e.g. the availability of
	// the predecessor purchase. Nil when no bound applies.
	Bound *decimal.Decimal
}

// ValidationError lists every offending field of a rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add appends a field error.
func (e *ValidationError) Add(f FieldError) {
	e.Fields = append(e.Fields, f)
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Field returns the first error for field, if any.
func (e *ValidationError) Field(field string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f, true
		}
	}
	return FieldError{}, false
}

// NewFieldError is a shortcut for a single-field ValidationError.
func NewFieldError(field, code, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Code: code, Message: message}}}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "supply", "purchase", "supplier"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StorageError wraps a failure of the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is user-correctable.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage returns true if the error came from the backing store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
