package money

import (
	"errors"
	"fmt"
)

// Kind classifies calculation faults so callers can map them to responses.
type Kind string

const (
	// KindInputValidation covers null, non-numeric, negative or out-of-range scalars.
	KindInputValidation Kind = "input_validation"
	// KindStructuralInvalidity covers malformed line items and missing required fields.
	KindStructuralInvalidity Kind = "structural_invalidity"
	// KindInvariantViolation covers business rule breaches such as overpayment.
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is a calculation fault carrying the offending field when known.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap exposes the sentinel error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation builds an input validation fault for field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindInputValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Structural builds a structural fault for field.
func Structural(field, format string, args ...any) *Error {
	return &Error{Kind: KindStructuralInvalidity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Violation wraps a sentinel as an invariant violation.
func Violation(sentinel error) *Error {
	return &Error{Kind: KindInvariantViolation, Message: sentinel.Error(), Err: sentinel}
}

// KindOf reports the kind of err, or "" when err is not a calculation fault.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// FieldOf reports the field attached to err, if any.
func FieldOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Field
	}
	return ""
}
