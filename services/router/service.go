package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-router/internal/observability"
	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services"
	"github.com/upb/llm-router/services/breaker"
	"github.com/upb/llm-router/services/cache"
	"github.com/upb/llm-router/services/costs"
	"github.com/upb/llm-router/services/providers"
	"github.com/upb/llm-router/services/registry"
	"github.com/upb/llm-router/services/tokens"
)

// Config holds router tuning.
type Config struct {
	// MaxChainLength caps the fallback chain per request
	MaxChainLength int

	// CacheTTL is applied to stored responses
	CacheTTL time.Duration

	// PerModelRetries is the number of retries against the same model
	// before advancing the chain
	PerModelRetries int

	// BackoffSchedule delays retries of the same model; the last entry
	// repeats when retries outnumber entries
	BackoffSchedule []time.Duration

	// AttemptTimeout bounds each upstream attempt
	AttemptTimeout time.Duration
}

// DefaultConfig returns the standard router tuning.
func DefaultConfig() Config {
	return Config{
		MaxChainLength:  3,
		CacheTTL:        time.Hour,
		PerModelRetries: 1,
		BackoffSchedule: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		AttemptTimeout:  30 * time.Second,
	}
}

// Deps are the collaborators a Service orchestrates.
type Deps struct {
	Catalog   *registry.Registry
	Invokers  *providers.Registry
	Cache     *cache.ResponseCache
	Breaker   *breaker.Breaker
	Tracker   *costs.Tracker
	Estimator *tokens.Estimator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Service executes one logical request to completion, hiding individual
// upstream failures behind circuit-gated fallback. Route calls are
// independent; the service holds no per-request state.
type Service struct {
	cfg       Config
	catalog   *registry.Registry
	invokers  *providers.Registry
	cache     *cache.ResponseCache
	breaker   *breaker.Breaker
	tracker   *costs.Tracker
	estimator *tokens.Estimator
	metrics   *observability.Metrics
	logger    *zap.Logger

	// sleep is stubbed in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a router service.
func New(cfg Config, deps Deps) *Service {
	def := DefaultConfig()
	if cfg.MaxChainLength <= 0 {
		cfg.MaxChainLength = def.MaxChainLength
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.PerModelRetries < 0 {
		cfg.PerModelRetries = def.PerModelRetries
	}
	if len(cfg.BackoffSchedule) == 0 {
		cfg.BackoffSchedule = def.BackoffSchedule
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Breaker == nil {
		deps.Breaker = breaker.New(breaker.DefaultConfig(), logger)
	}

	if deps.Metrics != nil && deps.Breaker != nil {
		deps.Breaker.OnTransition(func(model string, state breaker.State) {
			deps.Metrics.CircuitTransition(model, string(state))
		})
	}

	return &Service{
		cfg:       cfg,
		catalog:   deps.Catalog,
		invokers:  deps.Invokers,
		cache:     deps.Cache,
		breaker:   deps.Breaker,
		tracker:   deps.Tracker,
		estimator: deps.Estimator,
		metrics:   deps.Metrics,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Route executes a request against the cheapest capable model, falling
// back along the resolved chain on transient failures. Streaming requests
// bypass the cache in both directions.
func (s *Service) Route(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	chain, err := s.resolveChain(req)
	if err != nil {
		return nil, err
	}

	// The resolved primary model is part of the cache key: the same
	// capability can resolve differently after a catalog reload.
	key := cache.Fingerprint(req.Messages, req.Temperature, chain[0].ID())
	if !req.Stream && s.cache != nil {
		if resp, ok := s.cache.Get(key); ok {
			s.metrics.CacheEvent("hit")
			resp.CacheHit = true
			resp.AttemptCount = 0
			return &resp, nil
		}
		s.metrics.CacheEvent("miss")
	}

	requestID := uuid.NewString()
	promptTokens := s.estimatePrompt(req.Messages)

	attemptErrs := make(map[string]error)
	modelsInvoked := 0

	for _, candidate := range chain {
		if ctx.Err() != nil {
			return nil, s.timeoutError(attemptErrs)
		}

		if candidate.ContextWindow < promptTokens {
			s.logger.Info("model skipped, context window too small",
				zap.String("model", candidate.ID()),
				zap.Int("prompt_tokens", promptTokens),
				zap.Int("context_window", candidate.ContextWindow))
			s.record(requestID, candidate, models.OutcomeSkipped, 0, 0, 0,
				fmt.Sprintf("prompt of ~%d tokens exceeds context window", promptTokens))
			continue
		}

		// Breaker check comes last so a skip never consumes the
		// half-open trial slot.
		if !s.breaker.Available(candidate.ID()) {
			s.logger.Info("model skipped, circuit open",
				zap.String("model", candidate.ID()),
				zap.String("request_id", requestID))
			s.record(requestID, candidate, models.OutcomeCircuitSkipped, 0, 0, 0, "circuit open")
			continue
		}

		invoker, err := s.invokers.Get(candidate.Provider)
		if err != nil {
			// No upstream call happened; hand back any trial slot.
			s.breaker.ReleaseTrial(candidate.ID())
			s.record(requestID, candidate, models.OutcomeError, 0, 0, 0, err.Error())
			attemptErrs[candidate.ID()] = err
			continue
		}

		modelsInvoked++
		resp, err := s.attemptModel(ctx, invoker, candidate, req, requestID, promptTokens)
		if err == nil {
			resp.AttemptCount = modelsInvoked
			if !req.Stream && s.cache != nil {
				s.cache.PutTTL(key, *resp, s.cfg.CacheTTL)
			}
			return resp, nil
		}

		// Caller cancellation is a deadline failure, not a request-shape
		// error; it can surface as context.Canceled from the backoff sleep.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			attemptErrs[candidate.ID()] = err
			return nil, s.timeoutError(attemptErrs)
		}

		// Permanent errors recur identically against other models;
		// surface them without consuming the remaining chain.
		if providers.IsAuth(err) {
			return nil, services.NewRouteError(services.ErrorKindProviderAuth,
				fmt.Sprintf("model %s rejected credentials", candidate.ID()), err)
		}
		if !providers.IsTransient(err) {
			return nil, services.NewRouteError(services.ErrorKindInvalidRequest,
				fmt.Sprintf("model %s rejected the request", candidate.ID()), err)
		}

		attemptErrs[candidate.ID()] = err
	}

	if len(attemptErrs) == 0 {
		// Every candidate was skipped without an upstream attempt.
		return nil, services.NewRouteError(services.ErrorKindAllModelsExhausted,
			"no candidate was attempted (all skipped)", nil)
	}
	return nil, services.NewAllModelsExhausted(attemptErrs)
}

// attemptModel retries a single model per the backoff schedule and records
// exactly one usage record for its terminal outcome.
func (s *Service) attemptModel(ctx context.Context, invoker providers.Invoker, candidate models.ModelDescriptor, req *models.RouteRequest, requestID string, promptTokens int) (*models.RouteResponse, error) {
	id := candidate.ID()
	upstream := &providers.Request{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Metadata:    map[string]string{"request_id": requestID},
	}

	var lastErr error
	for try := 0; try <= s.cfg.PerModelRetries; try++ {
		if try > 0 {
			if err := s.sleep(ctx, s.backoffDelay(try-1)); err != nil {
				lastErr = err
				break
			}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		raw, err := invoker.Invoke(attemptCtx, candidate.Name, upstream)
		cancel()

		if err == nil {
			s.breaker.RecordSuccess(id)
			cost := models.AttemptCost(candidate, raw.InputTokens, raw.OutputTokens)
			s.record(requestID, candidate, models.OutcomeSuccess,
				raw.InputTokens, raw.OutputTokens, cost, "")
			s.metrics.ObserveAttempt(id, string(models.OutcomeSuccess), time.Since(start))
			s.metrics.AddSpend(id, cost)

			return &models.RouteResponse{
				RequestID: requestID,
				Content:   raw.Content,
				Model:     candidate,
				Usage: models.Usage{
					InputTokens:  raw.InputTokens,
					OutputTokens: raw.OutputTokens,
					TotalCost:    cost,
				},
			}, nil
		}

		s.breaker.RecordFailure(id)
		lastErr = err
		s.logger.Warn("upstream attempt failed",
			zap.String("model", id),
			zap.String("request_id", requestID),
			zap.Int("try", try),
			zap.Bool("transient", providers.IsTransient(err)),
			zap.Error(err))

		if !providers.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}

	s.record(requestID, candidate, models.OutcomeError, 0, 0, 0, lastErr.Error())
	s.metrics.ObserveAttempt(id, string(models.OutcomeError), 0)
	return nil, lastErr
}

// resolveChain builds the ordered candidate list for a request.
func (s *Service) resolveChain(req *models.RouteRequest) ([]models.ModelDescriptor, error) {
	if req.Model != nil {
		chain := make([]models.ModelDescriptor, 0, 1+len(req.FallbackModels))
		seen := make(map[string]bool)

		primary, err := s.catalog.Resolve(*req.Model)
		if err != nil {
			return nil, err
		}
		chain = append(chain, primary)
		seen[primary.ID()] = true

		for _, ref := range req.FallbackModels {
			if len(chain) >= s.cfg.MaxChainLength {
				break
			}
			if seen[ref.ID()] {
				continue
			}
			d, err := s.catalog.Resolve(ref)
			if err != nil {
				return nil, err
			}
			chain = append(chain, d)
			seen[d.ID()] = true
		}
		return chain, nil
	}

	ranked, err := s.catalog.ResolveForCapability(*req.Capability)
	if err != nil {
		return nil, err
	}
	if len(ranked) > s.cfg.MaxChainLength {
		ranked = ranked[:s.cfg.MaxChainLength]
	}
	return ranked, nil
}

// validateRequest enforces the request contract: non-empty messages and
// exactly one of capability or explicit model.
func validateRequest(req *models.RouteRequest) error {
	if req == nil {
		return services.NewRouteError(services.ErrorKindInvalidRequest, "request is nil", nil)
	}
	if len(req.Messages) == 0 {
		return services.NewRouteError(services.ErrorKindInvalidRequest, "messages must not be empty", nil)
	}
	for i, m := range req.Messages {
		if m.Role == "" || m.Content == "" {
			return services.NewRouteError(services.ErrorKindInvalidRequest,
				fmt.Sprintf("message %d has empty role or content", i), nil)
		}
	}
	hasCapability := req.Capability != nil
	hasModel := req.Model != nil
	if hasCapability == hasModel {
		return services.NewRouteError(services.ErrorKindInvalidRequest,
			"exactly one of capability or model must be set", nil)
	}
	return nil
}

// estimatePrompt returns the estimated prompt token count, or zero when no
// estimator is wired (screening disabled).
func (s *Service) estimatePrompt(msgs []models.Message) int {
	if s.estimator == nil {
		return 0
	}
	return s.estimator.CountMessages(msgs)
}

// record appends one usage record to the ledger.
func (s *Service) record(requestID string, d models.ModelDescriptor, outcome models.Outcome, inputTokens, outputTokens int, cost float64, errMsg string) {
	if s.tracker == nil {
		return
	}
	s.tracker.Record(models.UsageRecord{
		Timestamp:    time.Now(),
		RequestID:    requestID,
		Provider:     d.Provider,
		Model:        d.Name,
		Cost:         cost,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Outcome:      outcome,
		Error:        errMsg,
	})
}

// timeoutError is the terminal deadline failure, carrying whatever
// per-model errors accumulated before the deadline.
func (s *Service) timeoutError(attemptErrs map[string]error) error {
	e := services.NewRouteError(services.ErrorKindRouteTimeout,
		"route deadline exceeded before the chain completed", nil)
	if len(attemptErrs) > 0 {
		detail := make(map[string]string, len(attemptErrs))
		for model, err := range attemptErrs {
			detail[model] = err.Error()
		}
		e.WithDetail("models", detail)
	}
	return e
}

// backoffDelay returns the delay before retry i of the same model.
func (s *Service) backoffDelay(i int) time.Duration {
	if len(s.cfg.BackoffSchedule) == 0 {
		return 0
	}
	if i >= len(s.cfg.BackoffSchedule) {
		i = len(s.cfg.BackoffSchedule) - 1
	}
	return s.cfg.BackoffSchedule[i]
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CostSummary exposes the ledger aggregation for diagnostics.
func (s *Service) CostSummary(groupBy costs.GroupBy, since time.Time) (map[string]costs.Aggregate, error) {
	return s.tracker.Aggregate(groupBy, since)
}
