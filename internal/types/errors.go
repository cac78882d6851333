package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationFailed       ErrorCode = "validation_failed"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidPlan  ErrorCode = "validation_invalid_plan"
	ErrCodeValidationCSVHeader    ErrorCode = "validation_csv_header"
	ErrCodeValidationCSVEmpty     ErrorCode = "validation_csv_empty"
	ErrCodeValidationRows         ErrorCode = "validation_rows"
	ErrCodeValidationRowLimit     ErrorCode = "validation_row_limit"
	ErrCodeValidationQueryParam   ErrorCode = "validation_query_param"

	// Auth (401)
	ErrCodeAuthRequired     ErrorCode = "auth_required"
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthInvalidCreds ErrorCode = "auth_invalid_credentials"

	// Permission (403)
	ErrCodePermissionDenied      ErrorCode = "permission_denied"
	ErrCodePermissionOwnership   ErrorCode = "permission_ownership"
	ErrCodePermissionPlanFeature ErrorCode = "permission_plan_feature"
	ErrCodePermissionAdminKey    ErrorCode = "permission_admin_key"

	// Limits (429)
	ErrCodeLimitUsageExceeded ErrorCode = "limit_usage_exceeded"

	// Not Found (404)
	ErrCodeNotFoundUser      ErrorCode = "not_found_user"
	ErrCodeNotFoundPitch     ErrorCode = "not_found_pitch"
	ErrCodeNotFoundNarrative ErrorCode = "not_found_narrative"
	ErrCodeNotFoundDeck      ErrorCode = "not_found_deck"
	ErrCodeNotFoundJob       ErrorCode = "not_found_job"
	ErrCodeNotFoundTicker    ErrorCode = "not_found_ticker"

	// Conflict (409)
	ErrCodeConflictEmail      ErrorCode = "conflict_email_exists"
	ErrCodeConflictJobState   ErrorCode = "conflict_job_state"
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Upstream (503)
	ErrCodeUpstreamAI          ErrorCode = "upstream_ai_unavailable"
	ErrCodeUpstreamPlaces      ErrorCode = "upstream_places_unavailable"
	ErrCodeUpstreamSEC         ErrorCode = "upstream_sec_unavailable"
	ErrCodeUpstreamLogo        ErrorCode = "upstream_logo_unavailable"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalDB           ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected   ErrorCode = "internal_unexpected_error"
	ErrCodeInternalUnknownUsage ErrorCode = "internal_unknown_usage_type"

	// Webhook-specific
	ErrCodeWebhookSignature ErrorCode = "webhook_signature_invalid"
	ErrCodeWebhookPayload   ErrorCode = "webhook_payload_invalid"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "limit_"):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "webhook_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the platform.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
