package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services"
	"github.com/upb/llm-router/services/providers"
)

// StreamDelta is one element of a streamed response. A non-nil Err is the
// terminal error marker; the channel closes right after it. A normally
// completed stream closes the channel without an error delta.
type StreamDelta struct {
	Content string
	Err     error
}

// StreamResult is a live stream over a single upstream call. The sequence
// is finite and not restartable.
type StreamResult struct {
	RequestID string
	Model     models.ModelDescriptor
	Deltas    <-chan StreamDelta
}

// RouteStream executes a streaming request. Fallback across chain
// candidates applies only while establishing the stream; once the first
// delta can be observed by the caller there is no silent model switch.
// A mid-stream failure terminates the sequence with an error delta, and
// callers needing recovery must issue a fresh call. Streaming responses
// are never cached.
func (s *Service) RouteStream(ctx context.Context, req *models.RouteRequest) (*StreamResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Stream {
		return nil, services.NewRouteError(services.ErrorKindInvalidRequest,
			"stream flag must be set for RouteStream", nil)
	}

	chain, err := s.resolveChain(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	promptTokens := s.estimatePrompt(req.Messages)
	attemptErrs := make(map[string]error)

	for _, candidate := range chain {
		if ctx.Err() != nil {
			return nil, s.timeoutError(attemptErrs)
		}

		if !candidate.SupportsStreaming {
			s.record(requestID, candidate, models.OutcomeSkipped, 0, 0, 0, "streaming not supported")
			continue
		}
		if candidate.ContextWindow < promptTokens {
			s.record(requestID, candidate, models.OutcomeSkipped, 0, 0, 0,
				fmt.Sprintf("prompt of ~%d tokens exceeds context window", promptTokens))
			continue
		}
		if !s.breaker.Available(candidate.ID()) {
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

		handle, err := s.openStream(ctx, invoker, candidate, req, requestID)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				attemptErrs[candidate.ID()] = err
				return nil, s.timeoutError(attemptErrs)
			}
			if providers.IsAuth(err) {
				return nil, services.NewRouteError(services.ErrorKindProviderAuth,
					fmt.Sprintf("model %s rejected credentials", candidate.ID()), err)
			}
			if !providers.IsTransient(err) {
				return nil, services.NewRouteError(services.ErrorKindInvalidRequest,
					fmt.Sprintf("model %s rejected the request", candidate.ID()), err)
			}
			attemptErrs[candidate.ID()] = err
			continue
		}

		deltas := make(chan StreamDelta)
		go s.pump(ctx, handle, candidate, requestID, promptTokens, deltas)

		return &StreamResult{
			RequestID: requestID,
			Model:     candidate,
			Deltas:    deltas,
		}, nil
	}

	if len(attemptErrs) == 0 {
		return nil, services.NewRouteError(services.ErrorKindAllModelsExhausted,
			"no streaming candidate was attempted (all skipped)", nil)
	}
	return nil, services.NewAllModelsExhausted(attemptErrs)
}

// openStream establishes the upstream stream, retrying the same model per
// the backoff schedule. An establishment failure is a terminal per-model
// outcome and records one error usage record.
func (s *Service) openStream(ctx context.Context, invoker providers.Invoker, candidate models.ModelDescriptor, req *models.RouteRequest, requestID string) (providers.StreamHandle, error) {
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

		handle, err := invoker.InvokeStream(ctx, candidate.Name, upstream)
		if err == nil {
			return handle, nil
		}

		s.breaker.RecordFailure(id)
		lastErr = err
		s.logger.Warn("stream open failed",
			zap.String("model", id),
			zap.String("request_id", requestID),
			zap.Int("try", try),
			zap.Error(err))

		if !providers.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}

	s.record(requestID, candidate, models.OutcomeError, 0, 0, 0, lastErr.Error())
	s.metrics.ObserveAttempt(id, string(models.OutcomeError), 0)
	return nil, lastErr
}

// pump forwards upstream deltas to the caller and settles the attempt's
// usage record when the stream terminates. Token counts for streams are
// estimated because providers do not report usage on every stream.
func (s *Service) pump(ctx context.Context, handle providers.StreamHandle, candidate models.ModelDescriptor, requestID string, promptTokens int, deltas chan<- StreamDelta) {
	defer close(deltas)
	defer func() { _ = handle.Close() }()

	id := candidate.ID()
	var content strings.Builder
	start := time.Now()

	for {
		delta, err := handle.Recv()
		if errors.Is(err, io.EOF) {
			s.breaker.RecordSuccess(id)
			outputTokens := 0
			if s.estimator != nil {
				outputTokens = s.estimator.Count(content.String())
			}
			cost := models.AttemptCost(candidate, promptTokens, outputTokens)
			s.record(requestID, candidate, models.OutcomeSuccess, promptTokens, outputTokens, cost, "")
			s.metrics.ObserveAttempt(id, string(models.OutcomeSuccess), time.Since(start))
			s.metrics.AddSpend(id, cost)
			return
		}
		if err != nil {
			s.breaker.RecordFailure(id)
			s.record(requestID, candidate, models.OutcomeError, 0, 0, 0, err.Error())
			s.metrics.ObserveAttempt(id, string(models.OutcomeError), time.Since(start))
			s.logger.Warn("stream terminated with error",
				zap.String("model", id),
				zap.String("request_id", requestID),
				zap.Error(err))
			select {
			case deltas <- StreamDelta{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if delta.Content == "" {
			continue
		}
		content.WriteString(delta.Content)
		select {
		case deltas <- StreamDelta{Content: delta.Content}:
		case <-ctx.Done():
			s.abandon(candidate, requestID, promptTokens, content.String(), start)
			return
		}
	}
}

// abandon settles a stream attempt whose caller went away mid-delivery.
// The upstream call consumed real tokens, so a ledger entry is still
// appended; the outcome is neither a model success nor a model failure,
// so the breaker's trial slot is released instead of resolved.
func (s *Service) abandon(candidate models.ModelDescriptor, requestID string, promptTokens int, content string, start time.Time) {
	id := candidate.ID()
	s.breaker.ReleaseTrial(id)

	outputTokens := 0
	if s.estimator != nil {
		outputTokens = s.estimator.Count(content)
	}
	cost := models.AttemptCost(candidate, promptTokens, outputTokens)
	s.record(requestID, candidate, models.OutcomeError, promptTokens, outputTokens, cost,
		"stream abandoned by caller before completion")
	s.metrics.ObserveAttempt(id, string(models.OutcomeError), time.Since(start))
	s.metrics.AddSpend(id, cost)
	s.logger.Info("stream abandoned by caller",
		zap.String("model", id),
		zap.String("request_id", requestID),
		zap.Int("output_tokens", outputTokens))
}
