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
	ErrCodeValidationInvalidLat      ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLng      ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidBounds   ErrorCode = "validation_invalid_bounds"
	ErrCodeValidationInvalidTimezone ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationInvalidRadius   ErrorCode = "validation_invalid_alert_radius"
	ErrCodeValidationInvalidQuietHrs ErrorCode = "validation_invalid_quiet_hours"
	ErrCodeValidationPastDelivery    ErrorCode = "validation_delivery_time_in_past"
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationLimitExceeded   ErrorCode = "validation_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundSighting     ErrorCode = "not_found_sighting"
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"
	ErrCodeNotFoundPreferences  ErrorCode = "not_found_preferences"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalCache      ErrorCode = "internal_cache_error"
	ErrCodeInternalQueue      ErrorCode = "internal_queue_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"

	// Weather provider errors. NotConfigured is permanent (missing
	// credentials or endpoint) and must never be retried; Unavailable and
	// RateLimited are transient and safe to retry with backoff.
	ErrCodeUpstreamWeatherNotConfigured ErrorCode = "upstream_weather_not_configured"
	ErrCodeUpstreamWeatherUnavailable   ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamRateLimited          ErrorCode = "upstream_rate_limited"

	// Push transport errors (per-device, collected into tallies upstream).
	ErrCodeUpstreamPushUnavailable ErrorCode = "upstream_push_unavailable"
	ErrCodeUpstreamPushRejected    ErrorCode = "upstream_push_token_rejected"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether an error with this code is transient and safe
// to retry. Configuration and validation failures are permanent; background
// jobs use this to decide between backoff-retry and discard.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeUpstreamWeatherUnavailable,
		ErrCodeUpstreamRateLimited,
		ErrCodeUpstreamPushUnavailable,
		ErrCodeInternalDB,
		ErrCodeInternalCache,
		ErrCodeInternalQueue:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type used throughout the
// pipeline. All domain and handler errors should be expressed as AppError to
// enable consistent error formatting, HTTP status mapping, retry
// classification, and error chain support.
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

// Retryable reports whether this error is transient.
func (e *AppError) Retryable() bool {
	return e.Code.Retryable()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates an AppError carrying structured details for
// the client, such as the offending field of a validation failure.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
