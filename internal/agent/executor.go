package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/tools"
)

// DefaultMaxIterations caps model invocations per executor run.
const DefaultMaxIterations = 15

// DefaultHistoryWindow is how many recent messages each model call sees.
const DefaultHistoryWindow = 50

const truncationNotice = "\n\n[Stopped: tool-call iteration limit reached before the task finished.]"

// Store is the slice of the persistence layer the executor needs. Every
// message is appended as it is produced so a crash mid-loop leaves a
// consistent history.
type Store interface {
	AppendMessage(ctx context.Context, conversationID string, msg llm.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]llm.Message, error)
}

// Executor runs the tool-calling loop for one prompt against one
// conversation.
type Executor struct {
	client        llm.Client
	registry      *tools.Registry
	store         Store
	maxIterations int
	historyWindow int
	log           zerolog.Logger
}

// NewExecutor creates an executor. Zero caps fall back to the defaults.
func NewExecutor(client llm.Client, registry *tools.Registry, store Store, maxIterations, historyWindow int, log zerolog.Logger) *Executor {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Executor{
		client:        client,
		registry:      registry,
		store:         store,
		maxIterations: maxIterations,
		historyWindow: historyWindow,
		log:           log,
	}
}

// RunOptions parameterizes one executor run.
type RunOptions struct {
	ConversationID string
	Prompt         string
	SystemPrompt   string

	// PromptRecorded skips appending Prompt as a user message; plan steps
	// after the first share the conversation and set this.
	PromptRecorded bool

	Sink EventSink
}

// Run executes the loop: call the model with recent history and the
// capability catalogue, dispatch requested calls, feed results back, and
// repeat until the model answers without requesting a capability or the
// iteration cap is hit. Transport errors abort the loop; dispatch failures
// are fed back to the model and the loop continues.
func (e *Executor) Run(ctx context.Context, opts RunOptions) (string, error) {
	if !opts.PromptRecorded {
		userMsg := llm.Message{Role: llm.RoleUser, Content: opts.Prompt}
		if err := e.store.AppendMessage(ctx, opts.ConversationID, userMsg); err != nil {
			return "", fmt.Errorf("record prompt: %w", err)
		}
	}

	defs := toWireTools(e.registry.Definitions())
	toolsStripped := false
	lastContent := ""

	for iter := 0; iter < e.maxIterations; iter++ {
		history, err := e.store.RecentMessages(ctx, opts.ConversationID, e.historyWindow)
		if err != nil {
			return "", fmt.Errorf("load history: %w", err)
		}

		req := &llm.ChatRequest{
			SystemPrompt: opts.SystemPrompt,
			Messages:     history,
		}
		if !toolsStripped {
			req.Tools = defs
		}

		handler := llm.HandlerFuncs{
			OnToken:     func(f string) { opts.Sink.emit(Event{Type: EventToken, Content: f}) },
			OnReasoning: func(f string) { opts.Sink.emit(Event{Type: EventReasoning, Content: f}) },
		}

		out, err := e.client.ChatStream(ctx, req, handler)
		if err != nil && !toolsStripped && llm.IsToolsUnsupported(err) {
			// Model rejected tool definitions: retry this iteration bare.
			e.log.Warn().Err(err).Msg("model does not support tools, retrying without")
			toolsStripped = true
			req.Tools = nil
			out, err = e.client.ChatStream(ctx, req, handler)
		}
		if err != nil {
			opts.Sink.emit(Event{Type: EventError, Content: err.Error()})
			return "", fmt.Errorf("model call: %w", err)
		}

		assistant := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   out.Content,
			ToolCalls: out.ToolCalls,
		}
		if err := e.store.AppendMessage(ctx, opts.ConversationID, assistant); err != nil {
			return "", fmt.Errorf("record assistant message: %w", err)
		}
		lastContent = out.Content

		if len(out.ToolCalls) == 0 {
			return out.Content, nil
		}

		for _, call := range out.ToolCalls {
			opts.Sink.emit(Event{Type: EventToolStart, Tool: call.Name, Content: call.Arguments})
			res := e.registry.Dispatch(ctx, call.Name, call.Arguments)
			opts.Sink.emit(Event{Type: EventToolEnd, Tool: call.Name, Content: res.Content})

			toolMsg := llm.Message{
				Role:       llm.RoleTool,
				Content:    res.Content,
				ToolCallID: call.ID,
			}
			if err := e.store.AppendMessage(ctx, opts.ConversationID, toolMsg); err != nil {
				return "", fmt.Errorf("record tool result: %w", err)
			}
		}
	}

	// Cap hit with calls still pending.
	final := lastContent + truncationNotice
	notice := llm.Message{Role: llm.RoleAssistant, Content: final}
	if err := e.store.AppendMessage(ctx, opts.ConversationID, notice); err != nil {
		return "", fmt.Errorf("record truncation notice: %w", err)
	}
	opts.Sink.emit(Event{Type: EventToken, Content: truncationNotice})
	return final, nil
}

// toWireTools converts registry definitions to the provider wire shape.
func toWireTools(defs []tools.Definition) []llm.ToolDefinition {
	wire := make([]llm.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		wire = append(wire, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return wire
}
