package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
	messagesEndpoint = "/v1/messages"
)

// Config holds Anthropic invoker configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Invoker talks to the Anthropic Messages API over plain HTTP.
type Invoker struct {
	cfg        Config
	httpClient *http.Client
}

// New creates an Anthropic invoker.
func New(cfg Config) *Invoker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Invoker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider tag.
func (i *Invoker) Name() models.Provider {
	return models.ProviderAnthropic
}

// messagesRequest is the wire request for the Messages API.
type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the wire response for a non-streaming call.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke performs one blocking Messages API call.
func (i *Invoker) Invoke(ctx context.Context, model string, req *providers.Request) (*providers.RawResponse, error) {
	start := time.Now()

	httpResp, err := i.post(ctx, model, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAnthropic,
			"read_error", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyResponse(httpResp.StatusCode, respBody)
	}

	var wire messagesResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, providers.NewProviderError(models.ProviderAnthropic,
			"unmarshal_error", "failed to decode response", httpResp.StatusCode, false, err)
	}

	var content strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &providers.RawResponse{
		Content:      content.String(),
		InputTokens:  wire.Usage.InputTokens,
		OutputTokens: wire.Usage.OutputTokens,
		FinishReason: wire.StopReason,
		Latency:      time.Since(start),
	}, nil
}

// InvokeStream opens a streaming Messages API call. Deltas arrive as
// server-sent events; content_block_delta events carry the text.
func (i *Invoker) InvokeStream(ctx context.Context, model string, req *providers.Request) (providers.StreamHandle, error) {
	httpResp, err := i.post(ctx, model, req, true)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, classifyResponse(httpResp.StatusCode, respBody)
	}

	return &streamHandle{
		body:    httpResp.Body,
		scanner: bufio.NewScanner(httpResp.Body),
	}, nil
}

// post builds and executes one Messages API request.
func (i *Invoker) post(ctx context.Context, model string, req *providers.Request, stream bool) (*http.Response, error) {
	wire := messagesRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = defaultMaxTokens
	}

	// The Messages API takes the system prompt as a top-level field.
	for _, m := range req.Messages {
		if m.Role == "system" {
			if wire.System != "" {
				wire.System += "\n"
			}
			wire.System += m.Content
			continue
		}
		wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	reqBody, err := json.Marshal(wire)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAnthropic,
			"marshal_error", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		i.cfg.BaseURL+messagesEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAnthropic,
			"request_error", "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", i.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := i.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransport(models.ProviderAnthropic, err)
	}
	return httpResp, nil
}

// classifyResponse maps an error status to the transient/permanent taxonomy.
func classifyResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("upstream returned status %d", statusCode)
	var wire errorResponse
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		message = wire.Error.Message
	}
	return providers.ClassifyStatus(models.ProviderAnthropic, statusCode, message, nil)
}

// streamHandle parses the SSE event stream of the Messages API.
type streamHandle struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// streamEvent covers the event payloads the handle cares about.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *streamHandle) Recv() (providers.Delta, error) {
	if h.done {
		return providers.Delta{}, io.EOF
	}

	for h.scanner.Scan() {
		line := h.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			return providers.Delta{Content: event.Delta.Text}, nil
		case "message_stop":
			h.done = true
			return providers.Delta{}, io.EOF
		case "error":
			h.done = true
			return providers.Delta{}, providers.NewProviderError(models.ProviderAnthropic,
				event.Error.Type, event.Error.Message, 0,
				event.Error.Type == "overloaded_error", nil)
		default:
			// message_start, ping, content_block_start and friends
			// carry no text.
		}
	}

	if err := h.scanner.Err(); err != nil {
		h.done = true
		return providers.Delta{}, providers.ClassifyTransport(models.ProviderAnthropic, err)
	}
	h.done = true
	return providers.Delta{}, io.EOF
}

func (h *streamHandle) Close() error {
	return h.body.Close()
}
