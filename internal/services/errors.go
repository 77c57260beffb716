// Package services defines the business logic for recording, confirming, and
// listing meter measurements. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into the wire-level error taxonomy (INVALID_DATA, DOUBLE_REPORT, ...) is
// performed at the handler layer.
package services

import "errors"

var (
	// ErrInvalidData indicates a malformed, missing, or mistyped input field.
	// Use errors.As with *InvalidDataError to recover the offending field.
	ErrInvalidData = errors.New("invalid data")

	// ErrInvalidType is returned when a list filter names a measure type
	// other than WATER or GAS.
	ErrInvalidType = errors.New("measure type must be WATER or GAS")

	// ErrDuplicatePeriod indicates a reading has already been taken for the
	// customer, type, and calendar month.
	ErrDuplicatePeriod = errors.New("reading already taken for this month")

	// ErrMeasureNotFound indicates that no measurement matches the requested
	// UUID.
	ErrMeasureNotFound = errors.New("measurement not found")

	// ErrMeasuresNotFound indicates a list query matched zero measurements.
	// The boundary deliberately reports this as an error, not an empty list.
	ErrMeasuresNotFound = errors.New("no readings found")

	// ErrConfirmationDuplicate indicates the measurement was already
	// confirmed; confirmation is terminal and never re-applied.
	ErrConfirmationDuplicate = errors.New("reading already confirmed")
)

// InvalidDataError is a field-level validation failure. It unwraps to
// ErrInvalidData so callers can branch on the class while still surfacing
// which field was rejected and why.
type InvalidDataError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidDataError) Error() string { return e.Field + ": " + e.Reason }

// Unwrap ties the field error to the ErrInvalidData class.
func (e *InvalidDataError) Unwrap() error { return ErrInvalidData }

// invalidData builds a field-level validation error.
func invalidData(field, reason string) error {
	return &InvalidDataError{Field: field, Reason: reason}
}

// ExtractionError wraps a vision-seam failure together with the image URL
// that was already obtained before the failure, so callers can account for
// the uploaded image instead of orphaning it silently.
type ExtractionError struct {
	ImageURL string
	Err      error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string { return e.Err.Error() }

// Unwrap exposes the underlying vision sentinel for errors.Is matching.
func (e *ExtractionError) Unwrap() error { return e.Err }
