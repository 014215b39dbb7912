package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services/providers"
)

// Config holds OpenAI invoker configuration.
type Config struct {
	APIKey  string
	BaseURL string
	OrgID   string
	Timeout time.Duration
}

// Invoker talks to the OpenAI chat completions API through the official
// community SDK.
type Invoker struct {
	client *gopenai.Client
}

// New creates an OpenAI invoker.
func New(cfg Config) *Invoker {
	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientCfg.OrgID = cfg.OrgID
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Invoker{
		client: gopenai.NewClientWithConfig(clientCfg),
	}
}

// Name returns the provider tag.
func (i *Invoker) Name() models.Provider {
	return models.ProviderOpenAI
}

// Invoke performs one blocking chat completion call.
func (i *Invoker) Invoke(ctx context.Context, model string, req *providers.Request) (*providers.RawResponse, error) {
	start := time.Now()

	resp, err := i.client.CreateChatCompletion(ctx, i.buildRequest(model, req))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(models.ProviderOpenAI,
			"empty_response", "completion returned no choices", 0, true, nil)
	}

	return &providers.RawResponse{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
		Latency:      time.Since(start),
	}, nil
}

// InvokeStream opens a streaming chat completion call.
func (i *Invoker) InvokeStream(ctx context.Context, model string, req *providers.Request) (providers.StreamHandle, error) {
	stream, err := i.client.CreateChatCompletionStream(ctx, i.buildRequest(model, req))
	if err != nil {
		return nil, classify(err)
	}
	return &streamHandle{stream: stream}, nil
}

func (i *Invoker) buildRequest(model string, req *providers.Request) gopenai.ChatCompletionRequest {
	out := gopenai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	out.Messages = make([]gopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, gopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

// streamHandle adapts the SDK stream to the invoker boundary.
type streamHandle struct {
	stream *gopenai.ChatCompletionStream
}

func (h *streamHandle) Recv() (providers.Delta, error) {
	resp, err := h.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return providers.Delta{}, io.EOF
		}
		return providers.Delta{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return providers.Delta{}, nil
	}
	return providers.Delta{Content: resp.Choices[0].Delta.Content}, nil
}

func (h *streamHandle) Close() error {
	return h.stream.Close()
}

// classify maps SDK errors onto the transient/permanent taxonomy. Status
// codes are read off the SDK error types; plain transport failures are
// transient.
func classify(err error) error {
	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		return providers.ClassifyStatus(models.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		return providers.ClassifyStatus(models.ProviderOpenAI, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return providers.ClassifyTransport(models.ProviderOpenAI, err)
}
