package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeQuota       ErrorType = "quota"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// APIError represents a remote API error in a transport-neutral form.
// Adapters at the call boundary translate whatever their HTTP library
// surfaces into this shape; everything downstream classifies on it.
type APIError struct {
	StatusCode int
	Message    string
	// RetryAfter carries an explicit server-provided delay (from a
	// Retry-After header). Zero means the server gave no hint.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %s error (code %d): %s", e.Type(), e.StatusCode, e.Message)
}

// Type derives the taxonomy bucket from the status code and message.
func (e *APIError) Type() ErrorType {
	switch {
	case e.StatusCode == 429:
		return ErrorTypeRateLimit
	case e.StatusCode == 403 && strings.Contains(strings.ToLower(e.Message), "quota"):
		return ErrorTypeQuota
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrorTypeAuth
	case e.StatusCode == 404:
		return ErrorTypeNotFound
	case e.StatusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// RateLimitError is returned when the full retry budget for a remote call
// has been spent. Callers depend on this one stable type instead of on
// whatever transport error happened to come up last.
type RateLimitError struct {
	Attempts int
	Last     error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RateLimitError) Unwrap() error {
	return e.Last
}

// IsRateLimitError checks whether err is an exhausted-retries error.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}
