// Measurement HTTP handlers.
//
// This file exposes the REST endpoints of the measurement lifecycle:
//   - POST  /upload/               (ingest a meter photo)
//   - PATCH /confirm/              (confirm or correct the automated reading)
//   - GET   /{customer_code}/list  (list a customer's measurements)
//
// Handlers are transport-thin: they validate shape and presence, call
// application services, and translate sentinel errors into the wire taxonomy
// with the appropriate status codes.
package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meter-backend/internal/domain"
	"github.com/tbourn/go-meter-backend/internal/services"
	"github.com/tbourn/go-meter-backend/internal/vision"
)

//
// Service contract (context-aware)
//

// MeasurementService defines the measurement lifecycle operations consumed by
// the HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MeasurementService interface {
	// Ingest validates, extracts, and persists a new meter reading.
	Ingest(ctx context.Context, in services.IngestInput) (*domain.Measurement, error)
	// Confirm applies a human confirmation value to a measurement.
	Confirm(ctx context.Context, measureUUID string, confirmedValue int64) error
	// List returns a customer's measurements, optionally filtered by type.
	List(ctx context.Context, customerCode, measureType string) ([]domain.Measurement, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for measurements. It depends on an
// abstract service interface to keep transport concerns separate from
// business logic.
type Handlers struct {
	svc MeasurementService
}

// New constructs a Handlers instance bound to the given service.
func New(svc MeasurementService) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs
//

// UploadRequest is the JSON payload for submitting a meter photo.
// String fields are pointers so that absent and mistyped fields are
// distinguishable from empty ones and can be rejected with a field-level
// INVALID_DATA description.
type UploadRequest struct {
	// Image is the base64-encoded photo of the meter.
	Image *string `json:"image" example:"iVBORw0KGgo..."`
	// CustomerCode identifies the billing account.
	CustomerCode *string `json:"customer_code" example:"C-1042"`
	// MeasureDatetime is the ISO-8601 timestamp the reading corresponds to.
	MeasureDatetime *string `json:"measure_datetime" example:"2024-03-05T00:00:00Z"`
	// MeasureType is WATER or GAS (case-insensitive).
	MeasureType *string `json:"measure_type" example:"WATER"`
}

// UploadResponse is the success payload of POST /upload/.
type UploadResponse struct {
	ImageURL     string `json:"image_url"`
	MeasureValue int64  `json:"measure_value"`
	MeasureUUID  string `json:"measure_uuid"`
}

// ConfirmRequest is the JSON payload for confirming or correcting a reading.
// ConfirmedValue is a pointer to an integer: JSON numbers with a fractional
// part fail to bind and are rejected as INVALID_DATA.
type ConfirmRequest struct {
	MeasureUUID    *string `json:"measure_uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	ConfirmedValue *int64  `json:"confirmed_value" example:"12345"`
}

// ConfirmResponse is the success payload of PATCH /confirm/.
type ConfirmResponse struct {
	Success bool `json:"success"`
}

// MeasureItem is the list serialization of a single measurement.
type MeasureItem struct {
	MeasureUUID     string `json:"measure_uuid"`
	MeasureDatetime string `json:"measure_datetime"`
	MeasureType     string `json:"measure_type"`
	HasConfirmed    bool   `json:"has_confirmed"`
	ImageURL        string `json:"image_url"`
}

// ListResponse wraps a customer's measurements.
type ListResponse struct {
	CustomerCode string        `json:"customer_code"`
	Measures     []MeasureItem `json:"measures"`
}

//
// Handlers
//

// Upload godoc
// @ID          uploadMeasurement
// @Summary     Submit a meter reading photo
// @Description Decodes the image, extracts the numeric reading via the vision model, and records the measurement for the month.
// @Tags        Measurements
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.UploadRequest  true  "Upload payload"
//
// @Success     200  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "INVALID_DATA, INVALID_IMAGE, or INVALID_RESULT"
// @Failure     409  {object}  handlers.ErrorResponse  "DOUBLE_REPORT"
// @Failure     504  {object}  handlers.ErrorResponse  "EXTRACTOR_TIMEOUT"
// @Router      /upload/ [post]
func (h *Handlers) Upload(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, "request body must be a JSON object with string fields")
		return
	}
	if field, ok := firstMissing(map[string]*string{
		"image":            req.Image,
		"customer_code":    req.CustomerCode,
		"measure_datetime": req.MeasureDatetime,
		"measure_type":     req.MeasureType,
	}); !ok {
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, field+": must be present and be a string")
		return
	}

	img, err := base64.StdEncoding.DecodeString(*req.Image)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "image is not valid base64")
		return
	}

	m, err := h.svc.Ingest(c.Request.Context(), services.IngestInput{
		CustomerCode:    *req.CustomerCode,
		MeasureDatetime: *req.MeasureDatetime,
		MeasureType:     *req.MeasureType,
		Image:           img,
	})
	if err != nil {
		failFromService(c, err)
		return
	}

	ok(c, http.StatusOK, UploadResponse{
		ImageURL:     m.ImageURL,
		MeasureValue: m.MeasureValue,
		MeasureUUID:  m.MeasureUUID,
	})
}

// Confirm godoc
// @ID          confirmMeasurement
// @Summary     Confirm or correct a reading
// @Description Agreement with the automated value confirms the measurement; disagreement overwrites the value and leaves it open for a later confirmation.
// @Tags        Measurements
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ConfirmRequest  true  "Confirmation payload"
//
// @Success     200  {object}  handlers.ConfirmResponse
// @Failure     400  {object}  handlers.ErrorResponse  "INVALID_DATA"
// @Failure     404  {object}  handlers.ErrorResponse  "MEASURE_NOT_FOUND"
// @Failure     409  {object}  handlers.ErrorResponse  "CONFIRMATION_DUPLICATE"
// @Router      /confirm/ [patch]
func (h *Handlers) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, "measure_uuid must be a string and confirmed_value an integer")
		return
	}
	if req.MeasureUUID == nil || strings.TrimSpace(*req.MeasureUUID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, "measure_uuid: must be present and be a string")
		return
	}
	if req.ConfirmedValue == nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, "confirmed_value: must be present and be an integer")
		return
	}

	if err := h.svc.Confirm(c.Request.Context(), *req.MeasureUUID, *req.ConfirmedValue); err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, ConfirmResponse{Success: true})
}

// List godoc
// @ID          listMeasurements
// @Summary     List a customer's measurements
// @Description Returns every measurement recorded for the customer, optionally filtered by measure type. Zero matches is reported as MEASURES_NOT_FOUND.
// @Tags        Measurements
// @Produce     json
//
// @Param       customer_code  path   string  true   "Customer code"
// @Param       measure_type   query  string  false  "WATER or GAS (case-insensitive)"
//
// @Success     200  {object}  handlers.ListResponse
// @Failure     400  {object}  handlers.ErrorResponse  "INVALID_TYPE"
// @Failure     404  {object}  handlers.ErrorResponse  "MEASURES_NOT_FOUND"
// @Router      /{customer_code}/list [get]
func (h *Handlers) List(c *gin.Context) {
	customer := c.Param("customer_code")
	mtype := c.Query("measure_type")

	items, err := h.svc.List(c.Request.Context(), customer, mtype)
	if err != nil {
		failFromService(c, err)
		return
	}

	resp := ListResponse{
		CustomerCode: customer,
		Measures:     make([]MeasureItem, 0, len(items)),
	}
	for _, m := range items {
		resp.Measures = append(resp.Measures, MeasureItem{
			MeasureUUID:     m.MeasureUUID,
			MeasureDatetime: m.MeasureDatetime,
			MeasureType:     m.MeasureType,
			HasConfirmed:    m.HasConfirmed,
			ImageURL:        m.ImageURL,
		})
	}
	ok(c, http.StatusOK, resp)
}

//
// Helpers
//

// firstMissing returns the name of the first nil field, if any. Iteration
// order over the map is not stable, but any missing field is a correct answer.
func firstMissing(fields map[string]*string) (string, bool) {
	for name, v := range fields {
		if v == nil {
			return name, false
		}
	}
	return "", true
}

// failFromService translates service and vision sentinels into the wire
// taxonomy. Every failure maps to exactly one entry; anything unrecognized is
// a 500 INTERNAL_ERROR.
func failFromService(c *gin.Context, err error) {
	var exErr *services.ExtractionError
	if errors.As(err, &exErr) {
		switch {
		case errors.Is(err, vision.ErrTimeout):
			failWithImage(c, http.StatusGatewayTimeout, ErrCodeExtractorTimeout, "the vision model did not answer in time", exErr.ImageURL)
		case errors.Is(err, vision.ErrInvalidResult):
			failWithImage(c, http.StatusBadRequest, ErrCodeInvalidResult, "the model output did not resolve to a single integer value", exErr.ImageURL)
		default:
			failWithImage(c, http.StatusBadRequest, ErrCodeInvalidImage, "the provided payload could not be processed as an image", exErr.ImageURL)
		}
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidData):
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, err.Error())
	case errors.Is(err, services.ErrInvalidType):
		fail(c, http.StatusBadRequest, ErrCodeInvalidType, "measurement type not allowed")
	case errors.Is(err, services.ErrDuplicatePeriod):
		fail(c, http.StatusConflict, ErrCodeDoubleReport, "reading has already been taken for the month")
	case errors.Is(err, services.ErrMeasureNotFound):
		fail(c, http.StatusNotFound, ErrCodeMeasureNotFound, "no measurement matching the given uuid was found")
	case errors.Is(err, services.ErrMeasuresNotFound):
		fail(c, http.StatusNotFound, ErrCodeMeasuresNotFound, "no readings found")
	case errors.Is(err, services.ErrConfirmationDuplicate):
		fail(c, http.StatusConflict, ErrCodeConfirmationDuplicate, "reading already confirmed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
