// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic error codes that are mapped to HTTP
// responses (via the `fail()` helper in this package). The codes are the
// stable, machine-readable taxonomy of the API: every failure is caught at
// its origin, mapped to exactly one of these entries, and returned as a
// structured payload; no failure propagates as an unstructured fault.
//
// Conventions:
//   - Domain codes are SCREAMING_SNAKE_CASE and paired with a fixed HTTP
//     status (e.g. DOUBLE_REPORT → 409, MEASURE_NOT_FOUND → 404).
//   - Transport-level codes (route/method fallbacks, rate limiting, panics)
//     complete the taxonomy so even infrastructure failures stay structured.
//
// Example response:
//
//	{
//	  "error_code": "DOUBLE_REPORT",
//	  "error_description": "reading already taken for this month"
//	}
package handlers

const (
	// Request-body and query validation.
	ErrCodeInvalidData = "INVALID_DATA"
	ErrCodeInvalidType = "INVALID_TYPE"

	// Vision seam.
	ErrCodeInvalidImage     = "INVALID_IMAGE"
	ErrCodeInvalidResult    = "INVALID_RESULT"
	ErrCodeExtractorTimeout = "EXTRACTOR_TIMEOUT"

	// Measurement lifecycle.
	ErrCodeDoubleReport          = "DOUBLE_REPORT"
	ErrCodeMeasureNotFound       = "MEASURE_NOT_FOUND"
	ErrCodeMeasuresNotFound      = "MEASURES_NOT_FOUND"
	ErrCodeConfirmationDuplicate = "CONFIRMATION_DUPLICATE"

	// Transport-level fallbacks.
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited      = "TOO_MANY_REQUESTS"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
