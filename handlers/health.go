package handlers

import (
	"net/http"

	"github.com/upb/llm-router/services/providers"
	"github.com/upb/llm-router/services/registry"
)

// HealthCheck returns a simple health check handler
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck reports ready once the catalog has models and at least one
// invoker is registered.
func ReadinessCheck(catalog *registry.Registry, invokers *providers.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := "ready"

		if len(catalog.Models()) == 0 {
			status = "not_ready"
			checks["catalog"] = "empty"
		} else {
			checks["catalog"] = "loaded"
		}

		if len(invokers.Providers()) == 0 {
			status = "not_ready"
			checks["providers"] = "none_configured"
		} else {
			checks["providers"] = "configured"
		}

		code := http.StatusOK
		if status != "ready" {
			code = http.StatusServiceUnavailable
		}
		respondJSON(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}
