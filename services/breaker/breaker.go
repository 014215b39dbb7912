package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the health gate status for one model.
type State string

const (
	// StateClosed: traffic flows normally
	StateClosed State = "closed"

	// StateOpen: the model is skipped until its cooldown elapses
	StateOpen State = "open"

	// StateHalfOpen: exactly one trial call is allowed through
	StateHalfOpen State = "half_open"
)

// Config holds circuit breaker tuning.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit
	FailureThreshold int

	// Cooldown is the initial open duration
	Cooldown time.Duration

	// CooldownCap bounds the doubled cooldown after repeated reopens
	CooldownCap time.Duration
}

// DefaultConfig returns the standard breaker tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
		CooldownCap:      10 * time.Minute,
	}
}

// modelState tracks one model's circuit. Created lazily on first failure
// lookup; reset to closed on any success.
type modelState struct {
	status              State
	consecutiveFailures int
	openedAt            time.Time
	cooldown            time.Duration
	trialInFlight       bool
}

// Breaker gates traffic per model. Health is tracked per model rather than
// per provider so one overloaded model never blocks requests from reaching
// healthy ones.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	states map[string]*modelState
	logger *zap.Logger
	now    func() time.Time

	// onTransition, when set, observes state changes (used for metrics)
	onTransition func(model string, state State)
}

// New creates a breaker with the given config.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.CooldownCap <= 0 {
		cfg.CooldownCap = DefaultConfig().CooldownCap
	}
	return &Breaker{
		cfg:    cfg,
		states: make(map[string]*modelState),
		logger: logger,
		now:    time.Now,
	}
}

// OnTransition registers a callback invoked on every state change.
func (b *Breaker) OnTransition(fn func(model string, state State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// Available reports whether a model may be called. Closed circuits are
// always available. An open circuit whose cooldown has elapsed moves to
// half-open and admits exactly one trial call; further callers are held
// back until that trial resolves.
func (b *Breaker) Available(model string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, exists := b.states[model]
	if !exists || st.status == StateClosed {
		return true
	}

	switch st.status {
	case StateOpen:
		if b.now().Sub(st.openedAt) < st.cooldown {
			return false
		}
		b.transition(model, st, StateHalfOpen)
		st.trialInFlight = true
		return true
	case StateHalfOpen:
		if st.trialInFlight {
			return false
		}
		st.trialInFlight = true
		return true
	}
	return true
}

// RecordSuccess resets a model's circuit to closed.
func (b *Breaker) RecordSuccess(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, exists := b.states[model]
	if !exists {
		return
	}
	st.consecutiveFailures = 0
	st.cooldown = b.cfg.Cooldown
	st.trialInFlight = false
	if st.status != StateClosed {
		b.transition(model, st, StateClosed)
	}
}

// RecordFailure counts a failed upstream attempt. The circuit opens after
// the configured threshold of consecutive failures; a failed half-open
// trial reopens with the cooldown doubled, capped at the configured max.
func (b *Breaker) RecordFailure(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, exists := b.states[model]
	if !exists {
		st = &modelState{
			status:   StateClosed,
			cooldown: b.cfg.Cooldown,
		}
		b.states[model] = st
	}

	switch st.status {
	case StateClosed:
		st.consecutiveFailures++
		if st.consecutiveFailures >= b.cfg.FailureThreshold {
			st.openedAt = b.now()
			b.transition(model, st, StateOpen)
		}
	case StateHalfOpen:
		st.trialInFlight = false
		st.cooldown = st.cooldown * 2
		if st.cooldown > b.cfg.CooldownCap {
			st.cooldown = b.cfg.CooldownCap
		}
		st.openedAt = b.now()
		b.transition(model, st, StateOpen)
	case StateOpen:
		// Late failure report while already open; nothing to change.
	}
}

// ReleaseTrial returns an unresolved half-open trial slot so the next
// caller can try the model again. Used when a trial call is abandoned
// before its outcome is known; the circuit stays half-open.
func (b *Breaker) ReleaseTrial(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, exists := b.states[model]
	if !exists || st.status != StateHalfOpen {
		return
	}
	st.trialInFlight = false
}

// CurrentState returns the model's state without side effects.
func (b *Breaker) CurrentState(model string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, exists := b.states[model]
	if !exists {
		return StateClosed
	}
	return st.status
}

// Snapshot returns the state of every tracked model.
func (b *Breaker) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]State, len(b.states))
	for model, st := range b.states {
		out[model] = st.status
	}
	return out
}

// transition applies a state change (must be called with lock held).
func (b *Breaker) transition(model string, st *modelState, to State) {
	st.status = to
	if b.logger != nil {
		b.logger.Info("circuit transition",
			zap.String("model", model),
			zap.String("state", string(to)),
			zap.Duration("cooldown", st.cooldown))
	}
	if b.onTransition != nil {
		b.onTransition(model, to)
	}
}
