package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meter-backend/internal/domain"
	"github.com/tbourn/go-meter-backend/internal/services"
	"github.com/tbourn/go-meter-backend/internal/vision"
)

// ---- stub service ----

type stubSvc struct {
	ingest  func(ctx context.Context, in services.IngestInput) (*domain.Measurement, error)
	confirm func(ctx context.Context, measureUUID string, confirmedValue int64) error
	list    func(ctx context.Context, customerCode, measureType string) ([]domain.Measurement, error)
}

func (s stubSvc) Ingest(ctx context.Context, in services.IngestInput) (*domain.Measurement, error) {
	if s.ingest != nil {
		return s.ingest(ctx, in)
	}
	return nil, nil
}

func (s stubSvc) Confirm(ctx context.Context, measureUUID string, confirmedValue int64) error {
	if s.confirm != nil {
		return s.confirm(ctx, measureUUID, confirmedValue)
	}
	return nil
}

func (s stubSvc) List(ctx context.Context, customerCode, measureType string) ([]domain.Measurement, error) {
	if s.list != nil {
		return s.list(ctx, customerCode, measureType)
	}
	return nil, nil
}

func newRouter(svc MeasurementService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(svc)
	r := gin.New()
	r.POST("/upload/", h.Upload)
	r.PATCH("/confirm/", h.Confirm)
	r.GET("/:customer_code/list", h.List)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error envelope json: %v (body=%s)", err, w.Body.String())
	}
	if er.ErrorCode == "" || er.ErrorDescription == "" {
		t.Fatalf("error envelope missing fields: %+v", er)
	}
	return er
}

func uploadBody(image string) string {
	b, _ := json.Marshal(map[string]string{
		"image":            image,
		"customer_code":    "C-1042",
		"measure_datetime": "2024-03-05T00:00:00Z",
		"measure_type":     "WATER",
	})
	return string(b)
}

// ---- upload ----

func TestUpload_Success(t *testing.T) {
	var got services.IngestInput
	svc := stubSvc{ingest: func(ctx context.Context, in services.IngestInput) (*domain.Measurement, error) {
		got = in
		return &domain.Measurement{
			MeasureUUID:  "141add05-4415-4938-b5a1-17e0d3171aff",
			MeasureValue: 12345,
			ImageURL:     "https://files.example/abc",
		}, nil
	}}
	r := newRouter(svc)

	img := base64.StdEncoding.EncodeToString([]byte("raw-bytes"))
	w := doJSON(t, r, http.MethodPost, "/upload/", uploadBody(img))

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.MeasureUUID != "141add05-4415-4938-b5a1-17e0d3171aff" || resp.MeasureValue != 12345 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ImageURL != "https://files.example/abc" {
		t.Fatalf("unexpected image url: %q", resp.ImageURL)
	}
	if string(got.Image) != "raw-bytes" {
		t.Fatalf("handler must pass decoded image bytes, got %q", got.Image)
	}
	if got.CustomerCode != "C-1042" || got.MeasureType != "WATER" {
		t.Fatalf("input not forwarded: %+v", got)
	}
}

func TestUpload_MalformedJSON(t *testing.T) {
	r := newRouter(stubSvc{ingest: func(context.Context, services.IngestInput) (*domain.Measurement, error) {
		t.Fatalf("service must not be called")
		return nil, nil
	}})

	w := doJSON(t, r, http.MethodPost, "/upload/", `{"image": 42}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if er := decodeError(t, w); er.ErrorCode != ErrCodeInvalidData {
		t.Fatalf("error_code=%s, want %s", er.ErrorCode, ErrCodeInvalidData)
	}
}

func TestUpload_MissingField(t *testing.T) {
	r := newRouter(stubSvc{ingest: func(context.Context, services.IngestInput) (*domain.Measurement, error) {
		t.Fatalf("service must not be called")
		return nil, nil
	}})

	body := `{"image":"aGk=","customer_code":"C-1","measure_type":"WATER"}` // no measure_datetime
	w := doJSON(t, r, http.MethodPost, "/upload/", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if er := decodeError(t, w); er.ErrorCode != ErrCodeInvalidData {
		t.Fatalf("error_code=%s, want %s", er.ErrorCode, ErrCodeInvalidData)
	}
}

func TestUpload_BadBase64(t *testing.T) {
	r := newRouter(stubSvc{ingest: func(context.Context, services.IngestInput) (*domain.Measurement, error) {
		t.Fatalf("service must not be called")
		return nil, nil
	}})

	w := doJSON(t, r, http.MethodPost, "/upload/", uploadBody("$$not-base64$$"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if er := decodeError(t, w); er.ErrorCode != ErrCodeInvalidImage {
		t.Fatalf("error_code=%s, want %s", er.ErrorCode, ErrCodeInvalidImage)
	}
}

func TestUpload_ServiceErrorMappings(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("raw"))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantImage  string
	}{
		{
			name:       "double_report",
			err:        services.ErrDuplicatePeriod,
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeDoubleReport,
		},
		{
			name:       "invalid_data",
			err:        &services.InvalidDataError{Field: "customer_code", Reason: "must be a non-empty string"},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidData,
		},
		{
			name:       "extractor_timeout",
			err:        &services.ExtractionError{ImageURL: "", Err: vision.ErrTimeout},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeExtractorTimeout,
		},
		{
			name:       "invalid_result_keeps_image",
			err:        &services.ExtractionError{ImageURL: "https://files.example/kept", Err: fmt.Errorf("%w: model returned %q", vision.ErrInvalidResult, "123.5")},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidResult,
			wantImage:  "https://files.example/kept",
		},
		{
			name:       "invalid_image",
			err:        &services.ExtractionError{Err: vision.ErrInvalidImage},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name:       "internal",
			err:        fmt.Errorf("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternal,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(stubSvc{ingest: func(context.Context, services.IngestInput) (*domain.Measurement, error) {
				return nil, tc.err
			}})
			w := doJSON(t, r, http.MethodPost, "/upload/", uploadBody(img))

			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d. body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			er := decodeError(t, w)
			if er.ErrorCode != tc.wantCode {
				t.Fatalf("error_code=%s, want %s", er.ErrorCode, tc.wantCode)
			}
			if er.ImageURL != tc.wantImage {
				t.Fatalf("image_url=%q, want %q", er.ImageURL, tc.wantImage)
			}
		})
	}
}

// ---- confirm ----

func TestConfirm_Success(t *testing.T) {
	var gotUUID string
	var gotValue int64
	r := newRouter(stubSvc{confirm: func(ctx context.Context, measureUUID string, confirmedValue int64) error {
		gotUUID, gotValue = measureUUID, confirmedValue
		return nil
	}})

	w := doJSON(t, r, http.MethodPatch, "/confirm/", `{"measure_uuid":"m-1","confirmed_value":456}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp ConfirmResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.Success {
		t.Fatalf("expected {\"success\":true}, got %s (err=%v)", w.Body.String(), err)
	}
	if gotUUID != "m-1" || gotValue != 456 {
		t.Fatalf("service args mismatch: %q %d", gotUUID, gotValue)
	}
}

func TestConfirm_BindingAndPresence(t *testing.T) {
	r := newRouter(stubSvc{confirm: func(context.Context, string, int64) error {
		t.Fatalf("service must not be called")
		return nil
	}})

	bodies := []string{
		`{"measure_uuid":"m-1","confirmed_value":123.5}`, // fractional value
		`{"measure_uuid":"m-1","confirmed_value":"123"}`, // value as string
		`{"measure_uuid":123,"confirmed_value":123}`,     // uuid as number
		`{"confirmed_value":123}`,                        // missing uuid
		`{"measure_uuid":"   ","confirmed_value":123}`,   // blank uuid
		`{"measure_uuid":"m-1"}`,                         // missing value
	}
	for _, body := range bodies {
		w := doJSON(t, r, http.MethodPatch, "/confirm/", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status=%d, want 400", body, w.Code)
		}
		if er := decodeError(t, w); er.ErrorCode != ErrCodeInvalidData {
			t.Fatalf("body %s: error_code=%s, want %s", body, er.ErrorCode, ErrCodeInvalidData)
		}
	}
}

func TestConfirm_ErrorMappings(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not_found", services.ErrMeasureNotFound, http.StatusNotFound, ErrCodeMeasureNotFound},
		{"duplicate", services.ErrConfirmationDuplicate, http.StatusConflict, ErrCodeConfirmationDuplicate},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(stubSvc{confirm: func(context.Context, string, int64) error { return tc.err }})
			w := doJSON(t, r, http.MethodPatch, "/confirm/", `{"measure_uuid":"m-1","confirmed_value":1}`)
			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d", w.Code, tc.wantStatus)
			}
			if er := decodeError(t, w); er.ErrorCode != tc.wantCode {
				t.Fatalf("error_code=%s, want %s", er.ErrorCode, tc.wantCode)
			}
		})
	}
}

// ---- list ----

func TestList_Success(t *testing.T) {
	r := newRouter(stubSvc{list: func(ctx context.Context, customerCode, measureType string) ([]domain.Measurement, error) {
		if customerCode != "C-7" {
			t.Fatalf("customer=%q, want C-7", customerCode)
		}
		if measureType != "GAS" {
			t.Fatalf("measure_type=%q, want GAS", measureType)
		}
		return []domain.Measurement{
			{
				MeasureUUID:     "u-1",
				MeasureDatetime: "2024-01-05T00:00:00Z",
				MeasureType:     "GAS",
				HasConfirmed:    true,
				ImageURL:        "https://files.example/1",
			},
			{
				MeasureUUID:     "u-2",
				MeasureDatetime: "2024-02-05T00:00:00Z",
				MeasureType:     "GAS",
				ImageURL:        "https://files.example/2",
			},
		}, nil
	}})

	w := doJSON(t, r, http.MethodGet, "/C-7/list?measure_type=GAS", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.CustomerCode != "C-7" || len(resp.Measures) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.Measures[0].HasConfirmed || resp.Measures[1].HasConfirmed {
		t.Fatalf("has_confirmed not serialized: %+v", resp.Measures)
	}
	if resp.Measures[0].MeasureUUID != "u-1" || resp.Measures[1].ImageURL != "https://files.example/2" {
		t.Fatalf("items not serialized: %+v", resp.Measures)
	}
}

func TestList_ErrorMappings(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid_type", services.ErrInvalidType, http.StatusBadRequest, ErrCodeInvalidType},
		{"none_found", services.ErrMeasuresNotFound, http.StatusNotFound, ErrCodeMeasuresNotFound},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(stubSvc{list: func(context.Context, string, string) ([]domain.Measurement, error) {
				return nil, tc.err
			}})
			w := doJSON(t, r, http.MethodGet, "/C-7/list", "")
			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d", w.Code, tc.wantStatus)
			}
			if er := decodeError(t, w); er.ErrorCode != tc.wantCode {
				t.Fatalf("error_code=%s, want %s", er.ErrorCode, tc.wantCode)
			}
		})
	}
}
