package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/llm-router/models"
)

// ProviderError is an error from an upstream provider, classified at the
// invocation boundary so the router never inspects provider internals.
type ProviderError struct {
	// Provider that generated the error
	Provider models.Provider

	// Code is a provider-specific error code when available
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code, if applicable
	StatusCode int

	// Transient reports whether the call may be retried
	Transient bool

	// Auth reports a credential failure; always permanent
	Auth bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return string(e.Provider) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Provider) + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a classified provider error
func NewProviderError(provider models.Provider, code, message string, statusCode int, transient bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Transient:  transient,
		Auth:       statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden,
		Cause:      cause,
	}
}

// ClassifyStatus maps an HTTP status code to a classified error.
// Timeouts, rate limits and 5xx are transient; 401/403 are auth failures;
// everything else is a permanent request-shape error.
func ClassifyStatus(provider models.Provider, statusCode int, message string, cause error) *ProviderError {
	transient := statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= 500
	return NewProviderError(provider, http.StatusText(statusCode), message, statusCode, transient, cause)
}

// ClassifyTransport wraps a transport-level failure (connection refused,
// timeout, context deadline) as transient.
func ClassifyTransport(provider models.Provider, cause error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      "transport",
		Message:   "request failed",
		Transient: true,
		Cause:     cause,
	}
}

// IsTransient checks whether err may be retried. Context deadline errors
// count as transient: a per-attempt timeout is a failure of that attempt,
// not of the whole route call.
func IsTransient(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Transient && !provErr.Auth
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsAuth checks whether err is a credential failure.
func IsAuth(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Auth
	}
	return false
}
