package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/llm-router/config"
	"github.com/upb/llm-router/internal/observability"
	"github.com/upb/llm-router/routes"
	"github.com/upb/llm-router/services/breaker"
	"github.com/upb/llm-router/services/cache"
	"github.com/upb/llm-router/services/costs"
	"github.com/upb/llm-router/services/providers"
	"github.com/upb/llm-router/services/providers/anthropic"
	"github.com/upb/llm-router/services/providers/openai"
	"github.com/upb/llm-router/services/registry"
	"github.com/upb/llm-router/services/router"
	"github.com/upb/llm-router/services/tokens"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("router exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	var promRegistry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector())
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(promRegistry)
	}

	catalog := registry.New(logger)
	catalogFile, err := registry.LoadCatalogFile(cfg.CatalogFile, catalog, logger)
	if err != nil {
		return err
	}
	catalogFile.Watch()

	invokers := providers.NewRegistry()
	if cfg.Providers.OpenAI.APIKey != "" {
		if err := invokers.Register(openai.New(openai.Config{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Providers.OpenAI.Timeout,
		})); err != nil {
			return err
		}
		logger.Info("provider registered", zap.String("provider", "openai"))
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		if err := invokers.Register(anthropic.New(anthropic.Config{
			APIKey:  cfg.Providers.Anthropic.APIKey,
			BaseURL: cfg.Providers.Anthropic.BaseURL,
			Timeout: cfg.Providers.Anthropic.Timeout,
		})); err != nil {
			return err
		}
		logger.Info("provider registered", zap.String("provider", "anthropic"))
	}

	responseCache := cache.New(cfg.Router.CacheMaxEntries, cfg.Router.CacheTTL)
	stopCleanup := make(chan struct{})
	go responseCache.StartCleanupWorker(cfg.Router.CacheTTL, stopCleanup)
	defer close(stopCleanup)

	circuits := breaker.New(breaker.Config{
		FailureThreshold: cfg.Router.CircuitFailureThreshold,
		Cooldown:         cfg.Router.CircuitCooldown,
		CooldownCap:      cfg.Router.CircuitCooldownCap,
	}, logger)

	tracker := costs.NewTracker(logger)

	svc := router.New(router.Config{
		MaxChainLength:  cfg.Router.MaxChainLength,
		CacheTTL:        cfg.Router.CacheTTL,
		PerModelRetries: cfg.Router.PerModelRetries,
		BackoffSchedule: cfg.Router.BackoffSchedule,
		AttemptTimeout:  cfg.Router.AttemptTimeout,
	}, router.Deps{
		Catalog:   catalog,
		Invokers:  invokers,
		Cache:     responseCache,
		Breaker:   circuits,
		Tracker:   tracker,
		Estimator: tokens.NewEstimator(),
		Metrics:   metrics,
		Logger:    logger,
	})

	handler := routes.SetupRoutes(&routes.Dependencies{
		Router:   svc,
		Catalog:  catalog,
		Invokers: invokers,
		Breaker:  circuits,
		Tracker:  tracker,
		Registry: promRegistry,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("router listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Uint64("catalog_version", catalog.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("shutdown complete", zap.Float64("total_spend_usd", tracker.TotalSpend()))
	return nil
}
