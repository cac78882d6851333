package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pathsynch/internal/types"
)

func newTestRequest(method, path string, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	return r.WithContext(types.WithRequestID(r.Context(), "req_test_1"))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/pitches", "")

	OK(rec, r, map[string]string{"id": "pitch_1"})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Error("success must be true")
	}
	if resp.Error != "" {
		t.Errorf("error must be empty on success, got %q", resp.Error)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["id"] != "pitch_1" {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestCreatedEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/v1/pitches", "")

	Created(rec, r, map[string]string{"id": "pitch_2"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); !resp.Success {
		t.Error("success must be true")
	}
}

func TestErrorEnvelopeFromAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/v1/bulk/upload", "")

	appErr := types.NewAppErrorWithDetails(
		types.ErrCodeValidationRowLimit,
		"Row limit exceeded",
		nil,
		map[string]any{"limit": 5, "submitted": 8},
	)
	Error(rec, r, appErr)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	resp := decodeEnvelope(t, rec)
	if resp.Success {
		t.Error("success must be false")
	}
	if resp.Error != "validation_row_limit" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Message != "Row limit exceeded" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Details["limit"].(float64) != 5 || resp.Details["submitted"].(float64) != 8 {
		t.Errorf("details = %v", resp.Details)
	}
	if resp.RequestID != "req_test_1" {
		t.Errorf("request_id = %q", resp.RequestID)
	}
}

func TestErrorEnvelopeFromWrappedAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/usage", "")

	inner := types.NewAppError(types.ErrCodeNotFoundUser, "User not found", nil)
	Error(rec, r, errors.Join(errors.New("outer context"), inner))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Error != "not_found_user" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestErrorEnvelopeHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodGet, "/v1/pitches", "")

	Error(rec, r, errors.New("pq: connection refused on 10.1.2.3"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("error = %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "10.1.2.3") {
		t.Error("internal error text leaked to client")
	}
}

func TestDecodeJSONSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/v1/pitches", `{"businessName":"Sunrise Bakery"}`)

	var dst struct {
		BusinessName string `json:"businessName"`
	}
	if err := DecodeJSON(rec, r, &dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if dst.BusinessName != "Sunrise Bakery" {
		t.Errorf("decoded = %+v", dst)
	}
}

func TestDecodeJSONRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"businessName":`},
		{"unknown field", `{"businessName":"x","bogus":true}`},
		{"multiple values", `{"businessName":"x"}{"businessName":"y"}`},
		{"wrong type", `{"businessName":42}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := newTestRequest(http.MethodPost, "/v1/pitches", tc.body)

			var dst struct {
				BusinessName string `json:"businessName"`
			}
			err := DecodeJSON(rec, r, &dst)
			if err == nil {
				t.Fatal("expected decode error")
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("error type = %T", err)
			}
			if appErr.Code != errCodeValidationInvalidJSON {
				t.Errorf("code = %q", appErr.Code)
			}
			if appErr.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", appErr.HTTPStatus())
			}
		})
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	big := `{"businessName":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	rec := httptest.NewRecorder()
	r := newTestRequest(http.MethodPost, "/v1/pitches", big)

	var dst struct {
		BusinessName string `json:"businessName"`
	}
	err := DecodeJSON(rec, r, &dst)
	if err == nil {
		t.Fatal("expected size limit error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || !strings.Contains(appErr.Message, "1MB") {
		t.Errorf("error = %v", err)
	}
}
