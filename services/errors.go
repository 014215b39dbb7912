package services

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrorKind represents the category of a router error
type ErrorKind string

const (
	// ErrorKindInvalidRequest: caller error, never retried
	ErrorKindInvalidRequest ErrorKind = "invalid_request"

	// ErrorKindInvalidCatalog: catalog load rejected, nothing replaced
	ErrorKindInvalidCatalog ErrorKind = "invalid_catalog"

	// ErrorKindUnknownModel: configuration error, never retried
	ErrorKindUnknownModel ErrorKind = "unknown_model"

	// ErrorKindNoModelForCapability: configuration error, never retried
	ErrorKindNoModelForCapability ErrorKind = "no_model_for_capability"

	// ErrorKindProviderTransient: retried within the fallback budget
	ErrorKindProviderTransient ErrorKind = "provider_transient"

	// ErrorKindProviderAuth: permanent, surfaced immediately
	ErrorKindProviderAuth ErrorKind = "provider_auth"

	// ErrorKindAllModelsExhausted: terminal, carries per-model detail
	ErrorKindAllModelsExhausted ErrorKind = "all_models_exhausted"

	// ErrorKindRouteTimeout: terminal, overall deadline exceeded
	ErrorKindRouteTimeout ErrorKind = "route_timeout"
)

// RouteError is a structured error with a kind discriminator and
// optional context details
type RouteError struct {
	Kind    ErrorKind
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *RouteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *RouteError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is; two RouteErrors match when their kinds match
func (e *RouteError) Is(target error) bool {
	t, ok := target.(*RouteError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a detail to the error
func (e *RouteError) WithDetail(key string, value interface{}) *RouteError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewRouteError creates a new router error
func NewRouteError(kind ErrorKind, message string, err error) *RouteError {
	return &RouteError{
		Kind:    kind,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinel errors for errors.Is comparisons

var (
	ErrInvalidRequest       = NewRouteError(ErrorKindInvalidRequest, "invalid request", nil)
	ErrInvalidCatalog       = NewRouteError(ErrorKindInvalidCatalog, "invalid catalog", nil)
	ErrUnknownModel         = NewRouteError(ErrorKindUnknownModel, "unknown model", nil)
	ErrNoModelForCapability = NewRouteError(ErrorKindNoModelForCapability, "no model for capability", nil)
	ErrProviderTransient    = NewRouteError(ErrorKindProviderTransient, "transient provider error", nil)
	ErrProviderAuth         = NewRouteError(ErrorKindProviderAuth, "provider authentication failed", nil)
	ErrAllModelsExhausted   = NewRouteError(ErrorKindAllModelsExhausted, "all models exhausted", nil)
	ErrRouteTimeout         = NewRouteError(ErrorKindRouteTimeout, "route deadline exceeded", nil)
)

// NewAllModelsExhausted builds the terminal exhaustion error, carrying the
// last error observed for each attempted model so callers can diagnose the
// failure without seeing upstream provider internals
func NewAllModelsExhausted(perModel map[string]error) *RouteError {
	var combined error
	for model, err := range perModel {
		combined = multierr.Append(combined, fmt.Errorf("%s: %w", model, err))
	}
	e := NewRouteError(ErrorKindAllModelsExhausted, "all models exhausted", combined)
	detail := make(map[string]string, len(perModel))
	for model, err := range perModel {
		detail[model] = err.Error()
	}
	return e.WithDetail("models", detail)
}

// KindOf returns the ErrorKind of err, or empty string when err is not a
// RouteError
func KindOf(err error) ErrorKind {
	var routeErr *RouteError
	if errors.As(err, &routeErr) {
		return routeErr.Kind
	}
	return ""
}

// IsInvalidRequest checks if an error is a caller error
func IsInvalidRequest(err error) bool {
	return KindOf(err) == ErrorKindInvalidRequest
}

// IsUnknownModel checks if an error names an absent catalog entry
func IsUnknownModel(err error) bool {
	return KindOf(err) == ErrorKindUnknownModel
}

// IsNoModelForCapability checks if an error reports an empty resolution
func IsNoModelForCapability(err error) bool {
	return KindOf(err) == ErrorKindNoModelForCapability
}

// IsProviderAuth checks if an error is a permanent provider auth failure
func IsProviderAuth(err error) bool {
	return KindOf(err) == ErrorKindProviderAuth
}

// IsAllModelsExhausted checks if an error is terminal chain exhaustion
func IsAllModelsExhausted(err error) bool {
	return KindOf(err) == ErrorKindAllModelsExhausted
}

// IsRouteTimeout checks if an error is an overall deadline failure
func IsRouteTimeout(err error) bool {
	return KindOf(err) == ErrorKindRouteTimeout
}
