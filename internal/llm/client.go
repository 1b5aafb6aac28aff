package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxErrorBodySize limits how much of an error response body is read.
const MaxErrorBodySize = 1 * 1024 * 1024

// ClientConfig configures the OpenAI-compatible client.
type ClientConfig struct {
	// BaseURL is the API base, e.g. http://127.0.0.1:11434/v1.
	BaseURL string

	// APIKey for the Authorization header. Empty skips the header.
	APIKey string

	// Model is the default model when the request leaves it blank.
	Model string

	// MaxTokens default per call.
	MaxTokens int

	// Temperature default per call.
	Temperature float64

	// Timeout bounds connection establishment and response headers. The
	// overall call is bounded by the caller's context, never by
	// http.Client.Timeout, which would also cover streaming body reads.
	Timeout time.Duration
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (Ollama, vLLM, OpenRouter, the real thing) using streaming requests.
type OpenAIClient struct {
	config ClientConfig
	client *http.Client
}

// NewOpenAIClient creates a streaming chat client.
func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &OpenAIClient{
		config: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		},
	}, nil
}

// APIError is a non-success provider response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Body)
}

// IsToolsUnsupported reports whether err is a provider rejection of the
// tools parameter (some local models cannot do native tool calling). The
// caller is expected to retry the same call with tool definitions stripped.
func IsToolsUnsupported(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "tool") && strings.Contains(body, "support")
}

// chatCompletionRequest is the wire request shape.
type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Stream      bool             `json:"stream"`
}

// wireMessage mirrors Message with the provider's tool call encoding.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func toWire(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: tc.Type}
			if wtc.Type == "" {
				wtc.Type = "function"
			}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

// ChatStream runs one streaming chat completion. Decoder events are
// forwarded to handler as transport chunks arrive; the assembled message is
// returned when the provider closes the stream.
func (c *OpenAIClient) ChatStream(ctx context.Context, req *ChatRequest, handler StreamHandler) (*Assembled, error) {
	start := time.Now()

	wire := chatCompletionRequest{
		Model:       req.Model,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
	if wire.Model == "" {
		wire.Model = c.config.Model
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = c.config.MaxTokens
	}
	if wire.Temperature == 0 {
		wire.Temperature = c.config.Temperature
	}

	if req.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, wireMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	wire.Messages = append(wire.Messages, toWire(req.Messages)...)

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, &APIError{Status: resp.StatusCode, Body: string(errBody)}
	}

	decoder := NewDecoder(handler)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read stream: %w", readErr)
		}
	}

	assembled := decoder.Close()
	assembled.Duration = time.Since(start)
	return assembled, nil
}
