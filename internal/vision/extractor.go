// Package vision is the seam to the external vision model that turns a meter
// photograph into a numeric reading. It owns the two side-effecting steps of
// ingestion (image upload for a durable URI, model invocation) and the strict
// integer parse of the model output.
//
// The package deliberately exposes a narrow Extractor interface so services
// and tests can substitute a fake without touching HTTP.
package vision

import (
	"context"
	"errors"
)

// Sentinel failures of the extraction seam. Callers match with errors.Is and
// map them onto the wire taxonomy.
var (
	// ErrInvalidImage means the payload does not decode as an image, or the
	// upload to durable storage failed.
	ErrInvalidImage = errors.New("image payload is not a decodable image")

	// ErrInvalidResult means the model output did not parse as a single
	// integer reading.
	ErrInvalidResult = errors.New("model output is not a single integer")

	// ErrTimeout means the bounded extraction deadline expired before the
	// external call completed.
	ErrTimeout = errors.New("extraction timed out")
)

// Reading is the outcome of an extraction attempt. ImageURL is populated as
// soon as the upload succeeds, so it is present even when a later step fails;
// callers can then decide whether to reuse or discard the uploaded image.
type Reading struct {
	// ImageURL is the durable URI of the uploaded source image.
	ImageURL string
	// Value is the extracted integer reading (valid only when err == nil).
	Value int64
}

// Extractor converts image bytes into a Reading.
//
// Implementations must honor the context deadline, and must return any
// already-obtained ImageURL alongside a failure so partial side effects are
// never silently orphaned.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Reading, error)
}
