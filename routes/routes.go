package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/upb/llm-router/handlers"
	"github.com/upb/llm-router/services/breaker"
	"github.com/upb/llm-router/services/costs"
	"github.com/upb/llm-router/services/providers"
	"github.com/upb/llm-router/services/registry"
	"github.com/upb/llm-router/services/router"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Router   *router.Service
	Catalog  *registry.Registry
	Invokers *providers.Registry
	Breaker  *breaker.Breaker
	Tracker  *costs.Tracker
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	routeHandler := handlers.NewRouteHandler(deps.Router, deps.Logger)
	costsHandler := handlers.NewCostsHandler(deps.Tracker, deps.Logger)
	catalogHandler := handlers.NewCatalogHandler(deps.Catalog, deps.Breaker, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck())
	r.Get("/readyz", handlers.ReadinessCheck(deps.Catalog, deps.Invokers))

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/route", routeHandler.HandleRoute)
		r.Post("/route/stream", routeHandler.HandleRouteStream)
		r.Get("/costs", costsHandler.HandleCosts)
		r.Get("/models", catalogHandler.HandleModels)
		r.Get("/circuits", catalogHandler.HandleCircuits)
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
