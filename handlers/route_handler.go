package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services/router"
)

// RouteRequestBody is the HTTP shape of a route request
type RouteRequestBody struct {
	Messages []MessageBody `json:"messages" validate:"required,min=1,dive"`

	// Capability and Model are mutually exclusive; the router enforces
	// the XOR, the handler only validates shapes
	Capability *string       `json:"capability,omitempty" validate:"omitempty,oneof=simple moderate complex"`
	Model      *ModelRefBody `json:"model,omitempty"`

	FallbackModels []ModelRefBody `json:"fallback_models,omitempty" validate:"omitempty,dive"`
	Temperature    *float64       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens      int            `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Stream         bool           `json:"stream,omitempty"`
}

// MessageBody is one role/content pair
type MessageBody struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ModelRefBody names a catalog entry
type ModelRefBody struct {
	Provider string `json:"provider" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

// RouteHandler handles route-related HTTP requests
type RouteHandler struct {
	router   *router.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewRouteHandler creates a RouteHandler
func NewRouteHandler(svc *router.Service, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		router:   svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleRoute handles POST /v1/route
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	resp, err := h.router.Route(r.Context(), req)
	if err != nil {
		h.logger.Warn("route failed", zap.Error(err))
		respondRouteError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// HandleRouteStream handles POST /v1/route/stream as server-sent events.
// Each delta arrives as a data event; a terminal failure arrives as an
// error event before the stream closes.
func (h *RouteHandler) HandleRouteStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	req.Stream = true

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported",
			"response writer does not support flushing")
		return
	}

	stream, err := h.router.RouteStream(r.Context(), req)
	if err != nil {
		h.logger.Warn("route stream failed", zap.Error(err))
		respondRouteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for delta := range stream.Deltas {
		if delta.Err != nil {
			payload, _ := json.Marshal(map[string]string{"error": delta.Err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
			return
		}
		payload, _ := json.Marshal(map[string]string{"content": delta.Content})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

// decode parses and validates the request body, writing the error response
// itself on failure.
func (h *RouteHandler) decode(w http.ResponseWriter, r *http.Request) (*models.RouteRequest, bool) {
	var body RouteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return nil, false
	}
	if err := h.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return nil, false
	}

	req := &models.RouteRequest{
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
		Stream:      body.Stream,
	}
	for _, m := range body.Messages {
		req.Messages = append(req.Messages, models.Message{Role: m.Role, Content: m.Content})
	}
	if body.Capability != nil {
		c := models.Capability(*body.Capability)
		req.Capability = &c
	}
	if body.Model != nil {
		req.Model = &models.ModelRef{
			Provider: models.Provider(body.Model.Provider),
			Name:     body.Model.Name,
		}
	}
	for _, ref := range body.FallbackModels {
		req.FallbackModels = append(req.FallbackModels, models.ModelRef{
			Provider: models.Provider(ref.Provider),
			Name:     ref.Name,
		})
	}
	return req, true
}
