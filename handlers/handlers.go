package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/upb/llm-router/services"
)

// ErrorResponse is the common error body
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, statusCode int, err string, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// respondRouteError maps the router error taxonomy onto HTTP statuses.
func respondRouteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch services.KindOf(err) {
	case services.ErrorKindInvalidRequest:
		status = http.StatusBadRequest
	case services.ErrorKindUnknownModel, services.ErrorKindNoModelForCapability:
		status = http.StatusNotFound
	case services.ErrorKindProviderAuth, services.ErrorKindAllModelsExhausted:
		status = http.StatusBadGateway
	case services.ErrorKindRouteTimeout:
		status = http.StatusGatewayTimeout
	}

	body := ErrorResponse{
		Error:   string(services.KindOf(err)),
		Message: err.Error(),
	}
	var routeErr *services.RouteError
	if errors.As(err, &routeErr) && len(routeErr.Details) > 0 {
		body.Details = routeErr.Details
	}
	respondJSON(w, status, body)
}
