package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-router/services/breaker"
	"github.com/upb/llm-router/services/registry"
)

// CatalogHandler exposes the model catalog and circuit state
type CatalogHandler struct {
	catalog *registry.Registry
	breaker *breaker.Breaker
	logger  *zap.Logger
}

// NewCatalogHandler creates a CatalogHandler
func NewCatalogHandler(catalog *registry.Registry, brk *breaker.Breaker, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		breaker: brk,
		logger:  logger,
	}
}

// HandleModels handles GET /v1/models
func (h *CatalogHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version": h.catalog.Version(),
		"models":  h.catalog.Models(),
	})
}

// HandleCircuits handles GET /v1/circuits
func (h *CatalogHandler) HandleCircuits(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"circuits": h.breaker.Snapshot(),
	})
}
