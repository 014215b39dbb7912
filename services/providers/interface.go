package providers

import (
	"context"
	"time"

	"github.com/upb/llm-router/models"
)

// Request is the unified upstream request shape handed to an Invoker.
type Request struct {
	// Messages in the conversation
	Messages []models.Message

	// Temperature for sampling; nil means provider default
	Temperature *float64

	// MaxTokens caps the completion length; zero means provider default
	MaxTokens int

	// Metadata for tracking and logging
	Metadata map[string]string
}

// RawResponse is a provider's report of a successful completion.
type RawResponse struct {
	// Content is the completion text
	Content string

	// InputTokens consumed by the prompt
	InputTokens int

	// OutputTokens produced in the completion
	OutputTokens int

	// FinishReason indicates why the completion finished
	FinishReason string

	// Latency of the upstream call
	Latency time.Duration
}

// Delta is one increment of a streaming completion.
type Delta struct {
	// Content is the text fragment
	Content string
}

// StreamHandle is a live streaming completion. Recv returns io.EOF when
// the stream ends normally; any other error is terminal. Handles are not
// restartable.
type StreamHandle interface {
	Recv() (Delta, error)
	Close() error
}

// Invoker is the single capability the router consumes per provider.
// Implementations must classify every failure into transient or permanent
// via ProviderError; the router's fallback logic is a pure function of
// that classification.
type Invoker interface {
	// Name returns the provider this invoker talks to
	Name() models.Provider

	// Invoke performs one blocking completion call
	Invoke(ctx context.Context, model string, req *Request) (*RawResponse, error)

	// InvokeStream opens a streaming completion call
	InvokeStream(ctx context.Context, model string, req *Request) (StreamHandle, error)
}
