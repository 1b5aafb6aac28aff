// Package llm provides the OpenAI-compatible model client and the streaming
// protocol decoder for Figaro. The decoder reconstructs structured model
// output (content tokens, reasoning tokens, tool invocations) from an
// incrementally delivered SSE transport.
package llm

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set only on assistant messages that request capabilities.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested capability invocation. Arguments is the raw
// accumulated JSON string; the decoder never parses it. Validation happens
// at the registry boundary.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is the wire shape of a capability offered to the model.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable capability.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ChatRequest is a single chat completion call.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int
	Temperature  float64
}

// Assembled is the final message assembled by the decoder when the stream
// closes: the complete content string and the fully accumulated tool calls.
type Assembled struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Duration  time.Duration
}

// StreamHandler receives decoder events as they arrive. Token carries a
// content fragment, Reasoning a reasoning fragment.
type StreamHandler interface {
	Token(fragment string)
	Reasoning(fragment string)
}

// HandlerFuncs adapts plain functions to a StreamHandler. Nil fields drop
// the corresponding events.
type HandlerFuncs struct {
	OnToken     func(string)
	OnReasoning func(string)
}

func (h HandlerFuncs) Token(fragment string) {
	if h.OnToken != nil {
		h.OnToken(fragment)
	}
}

func (h HandlerFuncs) Reasoning(fragment string) {
	if h.OnReasoning != nil {
		h.OnReasoning(fragment)
	}
}

// Client is the model provider interface used by the executor and planner.
type Client interface {
	// ChatStream runs one model call, forwarding decoder events to handler
	// as they arrive, and returns the assembled message on stream close.
	ChatStream(ctx context.Context, req *ChatRequest, handler StreamHandler) (*Assembled, error)
}
