package models

import (
	"fmt"
	"time"
)

// Provider identifies an upstream LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Capability is a coarse task-difficulty tier a model can handle.
// It is used to filter the catalog when the caller does not name a model.
type Capability string

const (
	CapabilitySimple   Capability = "simple"
	CapabilityModerate Capability = "moderate"
	CapabilityComplex  Capability = "complex"
)

// ModelDescriptor describes one catalog entry. Descriptors are immutable
// once loaded; a catalog reload replaces the whole set atomically.
type ModelDescriptor struct {
	// Provider that serves this model
	Provider Provider `json:"provider" mapstructure:"provider" validate:"required,oneof=openai anthropic"`

	// Name is the provider-side model identifier, unique per provider
	Name string `json:"name" mapstructure:"name" validate:"required"`

	// InputCostPer1K is the price per 1,000 input tokens in USD
	InputCostPer1K float64 `json:"input_cost_per_1k" mapstructure:"input_cost_per_1k" validate:"gt=0"`

	// OutputCostPer1K is the price per 1,000 output tokens in USD
	OutputCostPer1K float64 `json:"output_cost_per_1k" mapstructure:"output_cost_per_1k" validate:"gt=0"`

	// ContextWindow is the maximum prompt size in tokens
	ContextWindow int `json:"context_window" mapstructure:"context_window" validate:"gt=0"`

	// Capabilities lists the tiers this model satisfies; never empty
	Capabilities []Capability `json:"capabilities" mapstructure:"capabilities" validate:"min=1,dive,oneof=simple moderate complex"`

	// SupportsStreaming reports whether the model can stream deltas
	SupportsStreaming bool `json:"supports_streaming" mapstructure:"supports_streaming"`
}

// ID returns the catalog key for this descriptor ("provider/name").
func (d ModelDescriptor) ID() string {
	return fmt.Sprintf("%s/%s", d.Provider, d.Name)
}

// HasCapability reports whether the descriptor is tagged with c.
func (d ModelDescriptor) HasCapability(c Capability) bool {
	for _, tag := range d.Capabilities {
		if tag == c {
			return true
		}
	}
	return false
}

// ModelRef names a catalog entry without carrying its attributes.
// Callers use refs; the router resolves them against the registry.
type ModelRef struct {
	Provider Provider `json:"provider" validate:"required"`
	Name     string   `json:"name" validate:"required"`
}

// ID returns the catalog key for this reference.
func (r ModelRef) ID() string {
	return fmt.Sprintf("%s/%s", r.Provider, r.Name)
}

// Message is a single role/content pair in a conversation.
type Message struct {
	// Role is "system", "user", or "assistant"
	Role string `json:"role" validate:"required,oneof=system user assistant"`

	// Content is the message text
	Content string `json:"content" validate:"required"`
}

// RouteRequest is one logical request to the router.
// Exactly one of Capability or Model must be set.
type RouteRequest struct {
	// Messages in the conversation, oldest first
	Messages []Message `json:"messages"`

	// Capability selects the cheapest capable model from the catalog
	Capability *Capability `json:"capability,omitempty"`

	// Model pins the request to an explicit catalog entry
	Model *ModelRef `json:"model,omitempty"`

	// FallbackModels overrides the registry-derived fallback chain
	// when Model is set
	FallbackModels []ModelRef `json:"fallback_models,omitempty"`

	// Temperature for sampling; nil means provider default
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps the completion length; zero means provider default
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stream requests incremental delivery; streaming responses bypass
	// the cache
	Stream bool `json:"stream,omitempty"`
}

// Usage holds token counts and the resulting cost for one response.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// RouteResponse is the result of a completed non-streaming route call.
type RouteResponse struct {
	// RequestID identifies the logical request for log correlation
	RequestID string `json:"request_id"`

	// Content is the fully materialized completion text
	Content string `json:"content"`

	// Model that produced the response
	Model ModelDescriptor `json:"model_used"`

	// Usage for the successful upstream attempt
	Usage Usage `json:"usage"`

	// AttemptCount is the number of models actually invoked; models
	// skipped by an open circuit do not count
	AttemptCount int `json:"attempt_count"`

	// CacheHit reports whether the response was served from cache
	CacheHit bool `json:"cache_hit"`
}

// Outcome classifies the terminal result of one chain candidate.
type Outcome string

const (
	// OutcomeSuccess: the upstream call succeeded
	OutcomeSuccess Outcome = "success"

	// OutcomeError: every retry against this model failed
	OutcomeError Outcome = "error"

	// OutcomeCircuitSkipped: the model was skipped by an open circuit,
	// no upstream call was made
	OutcomeCircuitSkipped Outcome = "circuit_skipped"

	// OutcomeSkipped: the model was skipped before invocation for a
	// non-circuit reason (context window too small, no streaming support)
	OutcomeSkipped Outcome = "skipped"
)

// UsageRecord is one immutable ledger entry. Records are appended by the
// router after each terminal per-model outcome and never mutated.
type UsageRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	Provider     Provider  `json:"provider"`
	Model        string    `json:"model"`
	Cost         float64   `json:"cost"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Outcome      Outcome   `json:"outcome"`

	// Error holds the terminal error message for non-success outcomes
	Error string `json:"error,omitempty"`
}

// TotalTokens returns the combined token count for the record.
func (r UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// AttemptCost computes the cost of an attempt against d in USD.
func AttemptCost(d ModelDescriptor, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*d.InputCostPer1K +
		float64(outputTokens)/1000*d.OutputCostPer1K
}
