// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including the structured error envelope, consistent JSON serialization, and
// helpers for common HTTP patterns. The goal is to guarantee uniform responses
// for both success and failure cases, making the API predictable and
// machine-friendly.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `error_code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx
//     responses are logged with request context for observability.
//   - `ok()` simplifies writing success responses in a consistent shape.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "error_code": "DOUBLE_REPORT",
//	  "error_description": "reading already taken for this month"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meter-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - ErrorCode: a stable, machine-readable entry of the error taxonomy
//     (see errors.go constants).
//   - ErrorDescription: a human-readable description, safe to show to users.
//   - RequestID: optional correlation ID echoed from X-Request-ID, used to
//     correlate server logs with client-side errors.
//   - ImageURL: populated only when an image was already uploaded before the
//     failure (e.g. INVALID_RESULT), so the caller can decide whether to
//     reuse or discard it.
type ErrorResponse struct {
	// Stable, machine-readable code (see errors.go constants)
	ErrorCode string `json:"error_code" example:"MEASURE_NOT_FOUND"`
	// Human-readable description (safe to show to users)
	ErrorDescription string `json:"error_description" example:"measurement not found"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// URI of an image uploaded before the failure, if any
	ImageURL string `json:"image_url,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// It constructs an ErrorResponse, writes it as JSON with the given HTTP
// status, and calls gin.Context.AbortWithStatusJSON to stop further
// processing. Server errors (>=500) are logged using the request-scoped
// logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	failWithImage(c, status, code, msg, "")
}

// failWithImage behaves like fail but attaches the URI of an already-uploaded
// image so partial side effects are reported rather than orphaned.
func failWithImage(c *gin.Context, status int, code, msg, imageURL string) {
	resp := ErrorResponse{
		ErrorCode:        code,
		ErrorDescription: msg,
		RequestID:        c.Writer.Header().Get("X-Request-ID"),
		ImageURL:         imageURL,
	}

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("error_code", code).
			Str("error_description", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
