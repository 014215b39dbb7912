package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services"
	"github.com/upb/llm-router/services/breaker"
	"github.com/upb/llm-router/services/cache"
	"github.com/upb/llm-router/services/costs"
	"github.com/upb/llm-router/services/providers"
	"github.com/upb/llm-router/services/registry"
	"github.com/upb/llm-router/services/router"
)

// stubInvoker returns a fixed response for every call.
type stubInvoker struct {
	content string
	err     error
}

func (s *stubInvoker) Name() models.Provider { return models.ProviderOpenAI }

func (s *stubInvoker) Invoke(ctx context.Context, model string, req *providers.Request) (*providers.RawResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &providers.RawResponse{
		Content:      s.content,
		InputTokens:  10,
		OutputTokens: 5,
		FinishReason: "stop",
	}, nil
}

func (s *stubInvoker) InvokeStream(ctx context.Context, model string, req *providers.Request) (providers.StreamHandle, error) {
	return nil, errors.New("not implemented")
}

func newTestService(t *testing.T, invoker providers.Invoker) (*router.Service, *costs.Tracker) {
	t.Helper()

	catalog := registry.New(zap.NewNop())
	require.NoError(t, catalog.Load([]models.ModelDescriptor{{
		Provider:          models.ProviderOpenAI,
		Name:              "gpt-4o-mini",
		InputCostPer1K:    0.00015,
		OutputCostPer1K:   0.0006,
		ContextWindow:     128000,
		Capabilities:      []models.Capability{models.CapabilitySimple},
		SupportsStreaming: true,
	}}))

	invokers := providers.NewRegistry()
	require.NoError(t, invokers.Register(invoker))

	tracker := costs.NewTracker(zap.NewNop())
	svc := router.New(router.Config{}, router.Deps{
		Catalog:  catalog,
		Invokers: invokers,
		Cache:    cache.New(10, time.Hour),
		Breaker:  breaker.New(breaker.DefaultConfig(), zap.NewNop()),
		Tracker:  tracker,
		Logger:   zap.NewNop(),
	})
	return svc, tracker
}

func postRoute(t *testing.T, h *RouteHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleRoute(rec, req)
	return rec
}

func TestHandleRoute(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, _ := newTestService(t, &stubInvoker{content: "42"})
		h := NewRouteHandler(svc, zap.NewNop())

		rec := postRoute(t, h, `{
			"messages": [{"role": "user", "content": "what is the answer?"}],
			"capability": "simple"
		}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.RouteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "42", resp.Content)
		assert.Equal(t, "openai/gpt-4o-mini", resp.Model.ID())
		assert.Equal(t, 1, resp.AttemptCount)
	})

	t.Run("invalid json", func(t *testing.T) {
		svc, _ := newTestService(t, &stubInvoker{content: "x"})
		h := NewRouteHandler(svc, zap.NewNop())

		rec := postRoute(t, h, `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing messages", func(t *testing.T) {
		svc, _ := newTestService(t, &stubInvoker{content: "x"})
		h := NewRouteHandler(svc, zap.NewNop())

		rec := postRoute(t, h, `{"capability": "simple"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad capability value", func(t *testing.T) {
		svc, _ := newTestService(t, &stubInvoker{content: "x"})
		h := NewRouteHandler(svc, zap.NewNop())

		rec := postRoute(t, h, `{
			"messages": [{"role": "user", "content": "hi"}],
			"capability": "galactic"
		}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown model maps to 404", func(t *testing.T) {
		svc, _ := newTestService(t, &stubInvoker{content: "x"})
		h := NewRouteHandler(svc, zap.NewNop())

		rec := postRoute(t, h, `{
			"messages": [{"role": "user", "content": "hi"}],
			"model": {"provider": "openai", "name": "gpt-9"}
		}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unknown_model", body.Error)
	})

	t.Run("exhaustion maps to 502 with per-model detail", func(t *testing.T) {
		transient := providers.ClassifyStatus(models.ProviderOpenAI,
			http.StatusServiceUnavailable, "down", nil)
		svc, _ := newTestService(t, &stubInvoker{err: transient})
		h := NewRouteHandler(svc, zap.NewNop())

		rec := postRoute(t, h, `{
			"messages": [{"role": "user", "content": "hi"}],
			"capability": "simple"
		}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "all_models_exhausted", body.Error)
		assert.Contains(t, body.Details, "models")
	})
}

func TestHandleCosts(t *testing.T) {
	tracker := costs.NewTracker(zap.NewNop())
	tracker.Record(models.UsageRecord{
		Timestamp:   time.Now(),
		Provider:    models.ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Cost:        0.01,
		InputTokens: 100,
		Outcome:     models.OutcomeSuccess,
	})

	h := NewCostsHandler(tracker, zap.NewNop())

	t.Run("group by model", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/costs?group_by=model", nil)
		rec := httptest.NewRecorder()
		h.HandleCosts(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body costsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "model", body.GroupBy)
		assert.InDelta(t, 0.01, body.Buckets["openai/gpt-4o-mini"].TotalCost, 1e-9)
		assert.InDelta(t, 0.01, body.Total, 1e-9)
	})

	t.Run("default group by", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/costs", nil)
		rec := httptest.NewRecorder()
		h.HandleCosts(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid group by", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/costs?group_by=hour", nil)
		rec := httptest.NewRecorder()
		h.HandleCosts(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid since", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/costs?since=yesterday", nil)
		rec := httptest.NewRecorder()
		h.HandleCosts(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthCheck()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("readyz not ready with empty catalog", func(t *testing.T) {
		catalog := registry.New(zap.NewNop())
		invokers := providers.NewRegistry()

		rec := httptest.NewRecorder()
		ReadinessCheck(catalog, invokers)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("readyz ready", func(t *testing.T) {
		catalog := registry.New(zap.NewNop())
		require.NoError(t, catalog.Load([]models.ModelDescriptor{{
			Provider:        models.ProviderOpenAI,
			Name:            "gpt-4o-mini",
			InputCostPer1K:  0.00015,
			OutputCostPer1K: 0.0006,
			ContextWindow:   128000,
			Capabilities:    []models.Capability{models.CapabilitySimple},
		}}))
		invokers := providers.NewRegistry()
		require.NoError(t, invokers.Register(&stubInvoker{content: "x"}))

		rec := httptest.NewRecorder()
		ReadinessCheck(catalog, invokers)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRespondRouteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"invalid request", services.NewRouteError(services.ErrorKindInvalidRequest, "bad", nil), http.StatusBadRequest},
		{"unknown model", services.NewRouteError(services.ErrorKindUnknownModel, "absent", nil), http.StatusNotFound},
		{"no model for capability", services.NewRouteError(services.ErrorKindNoModelForCapability, "none", nil), http.StatusNotFound},
		{"provider auth", services.NewRouteError(services.ErrorKindProviderAuth, "denied", nil), http.StatusBadGateway},
		{"exhausted", services.NewRouteError(services.ErrorKindAllModelsExhausted, "done", nil), http.StatusBadGateway},
		{"timeout", services.NewRouteError(services.ErrorKindRouteTimeout, "late", nil), http.StatusGatewayTimeout},
		{"plain error", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondRouteError(rec, tt.err)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
