// Package services – MeasurementService
//
// This file implements MeasurementService, the application-level component
// that owns the measurement lifecycle. Ingestion validates and normalizes the
// request, performs the duplicate-period pre-check, drives the vision seam
// under a bounded deadline, and persists the resulting measurement; listing
// filters a customer's measurements by optional type.
//
// The duplicate-period pre-check exists only to avoid spending a vision-model
// call on a request that is doomed; the composite unique index in the
// measurements table is what actually closes the check-then-act race.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// customer and type attributes.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meter-backend/internal/domain"
	"github.com/tbourn/go-meter-backend/internal/repo"
	"github.com/tbourn/go-meter-backend/internal/vision"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultExtractTimeout bounds the vision-model call when no explicit
// timeout is configured.
const defaultExtractTimeout = 30 * time.Second

// IngestInput is the validated-at-the-edge payload for a new reading.
// Image holds the already base64-decoded bytes.
type IngestInput struct {
	CustomerCode    string
	MeasureDatetime string
	MeasureType     string
	Image           []byte
}

// MeasurementService coordinates measurement ingestion, confirmation, and
// retrieval. It is safe for concurrent use; all conflict resolution is
// delegated to the storage layer.
type MeasurementService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Extractor is the seam to the external vision capability.
	Extractor vision.Extractor

	// ExtractTimeout bounds each vision call; <= 0 selects the default.
	ExtractTimeout time.Duration
	// MaxImageBytes caps the decoded image size; <= 0 disables the cap.
	MaxImageBytes int
}

// NewMeasurementService constructs a MeasurementService with sane defaults.
func NewMeasurementService(db *gorm.DB, ex vision.Extractor) *MeasurementService {
	return &MeasurementService{
		DB:             db,
		Extractor:      ex,
		ExtractTimeout: defaultExtractTimeout,
		MaxImageBytes:  10 << 20,
	}
}

// Ingest records a new meter reading: it validates the input tuple, rejects a
// second reading for the same (customer, type, month), extracts the numeric
// value from the image via the vision seam, and persists the measurement with
// a freshly generated UUID.
//
// Errors:
//   - field problems → *InvalidDataError (unwraps to ErrInvalidData)
//   - period collision (pre-check or insert race) → ErrDuplicatePeriod
//   - vision failures → *ExtractionError wrapping vision.ErrInvalidImage,
//     vision.ErrInvalidResult, or vision.ErrTimeout, with any obtained
//     image URL attached
func (s *MeasurementService) Ingest(ctx context.Context, in IngestInput) (*domain.Measurement, error) {
	tr := otel.Tracer("services/MeasurementService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("customer.code", in.CustomerCode),
			attribute.String("measure.type", in.MeasureType),
		),
	)
	defer span.End()

	customer := strings.TrimSpace(in.CustomerCode)
	if customer == "" {
		return nil, invalidData("customer_code", "must be a non-empty string")
	}
	if !domain.ValidMeasureType(in.MeasureType) {
		return nil, invalidData("measure_type", "must be either WATER or GAS")
	}
	mtype := domain.NormalizeMeasureType(in.MeasureType)

	period, ok := domain.PeriodOf(in.MeasureDatetime)
	if !ok {
		return nil, invalidData("measure_datetime", "must begin with an ISO year-month (YYYY-MM)")
	}
	if len(in.Image) == 0 {
		return nil, invalidData("image", "must be a non-empty base64 string")
	}
	if s.MaxImageBytes > 0 && len(in.Image) > s.MaxImageBytes {
		return nil, invalidData("image", "decoded image exceeds the maximum allowed size")
	}

	// Cheap pre-check before paying for a vision call. The unique index is
	// the authority under concurrency.
	exists, err := repo.PeriodExists(ctx, s.DB, customer, mtype, period)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicatePeriod
	}

	reading, err := s.extract(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	m := &domain.Measurement{
		CustomerCode:    customer,
		MeasureType:     mtype,
		MeasurePeriod:   period,
		MeasureDatetime: in.MeasureDatetime,
		MeasureValue:    reading.Value,
		ImageURL:        reading.ImageURL,
	}
	created, err := repo.CreateMeasurement(ctx, s.DB, m)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicatePeriod) {
			// Lost an insert race for the same period.
			return nil, ErrDuplicatePeriod
		}
		return nil, err
	}
	return created, nil
}

// extract drives the vision seam under a bounded deadline and wraps failures
// so the obtained image URL travels with the error.
func (s *MeasurementService) extract(ctx context.Context, img []byte) (vision.Reading, error) {
	timeout := s.ExtractTimeout
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reading, err := s.Extractor.Extract(ctx, img)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, vision.ErrTimeout) {
			err = vision.ErrTimeout
		}
		return reading, &ExtractionError{ImageURL: reading.ImageURL, Err: err}
	}
	return reading, nil
}

// List returns all measurements for a customer in insertion order, optionally
// filtered by measure type.
//
// Errors:
//   - unrecognized type filter → ErrInvalidType
//   - zero matches → ErrMeasuresNotFound (empty is an error at this boundary)
func (s *MeasurementService) List(ctx context.Context, customerCode, measureType string) ([]domain.Measurement, error) {
	tr := otel.Tracer("services/MeasurementService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("customer.code", customerCode),
			attribute.String("measure.type", measureType),
		),
	)
	defer span.End()

	filter := ""
	if strings.TrimSpace(measureType) != "" {
		if !domain.ValidMeasureType(measureType) {
			return nil, ErrInvalidType
		}
		filter = domain.NormalizeMeasureType(measureType)
	}

	items, err := repo.ListByCustomer(ctx, s.DB, customerCode, filter)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrMeasuresNotFound
	}
	return items, nil
}
