package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/tools"
)

// memStore is an in-memory Store for executor tests.
type memStore struct {
	mu       sync.Mutex
	messages map[string][]llm.Message
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[string][]llm.Message)}
}

func (s *memStore) AppendMessage(_ context.Context, conversationID string, msg llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

func (s *memStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// scriptedClient returns canned responses in order. When the script runs
// out it repeats the last entry.
type scriptedClient struct {
	script   []*llm.Assembled
	errs     []error
	calls    int
	requests []*llm.ChatRequest
}

func (c *scriptedClient) ChatStream(_ context.Context, req *llm.ChatRequest, handler llm.StreamHandler) (*llm.Assembled, error) {
	// The executor mutates the request on its no-tools retry, so keep a
	// snapshot rather than the pointer.
	snapshot := *req
	c.requests = append(c.requests, &snapshot)
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	out := c.script[i]
	if handler != nil && out.Content != "" {
		handler.Token(out.Content)
	}
	return out, nil
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(&echoTool{}))
	return r
}

type echoTool struct{}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "echoes q back" }
func (e *echoTool) Schema() tools.ParamSchema {
	return tools.ParamSchema{
		Type:       "object",
		Properties: map[string]*tools.Prop{"q": {Type: "string"}},
		Required:   []string{"q"},
	}
}
func (e *echoTool) Execute(_ context.Context, args map[string]any) (*tools.Result, error) {
	return tools.Ok("echo: " + args["q"].(string)), nil
}

func newTestExecutor(client llm.Client, store Store, registry *tools.Registry, maxIter int) *Executor {
	return NewExecutor(client, registry, store, maxIter, 50, zerolog.Nop())
}

func TestExecutor_DirectAnswer(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{{Content: "four"}}}
	exec := newTestExecutor(client, store, echoRegistry(t), 15)

	var events []Event
	final, err := exec.Run(context.Background(), RunOptions{
		ConversationID: "c1",
		Prompt:         "what is 2+2?",
		Sink:           func(e Event) { events = append(events, e) },
	})
	require.NoError(t, err)
	assert.Equal(t, "four", final)

	msgs := store.messages["c1"]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)

	require.NotEmpty(t, client.requests[0].Tools, "catalogue offered to the model")
}

func TestExecutor_DispatchesAndFeedsBackResults(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Type: "function", Name: "echo", Arguments: `{"q":"hi"}`},
		}},
		{Content: "it said hi"},
	}}
	exec := newTestExecutor(client, store, echoRegistry(t), 15)

	var events []Event
	final, err := exec.Run(context.Background(), RunOptions{
		ConversationID: "c1",
		Prompt:         "use the echo tool",
		Sink:           func(e Event) { events = append(events, e) },
	})
	require.NoError(t, err)
	assert.Equal(t, "it said hi", final)

	msgs := store.messages["c1"]
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "echo: hi", msgs[2].Content)

	// Second model call sees the tool result in history.
	secondHistory := client.requests[1].Messages
	assert.Equal(t, llm.RoleTool, secondHistory[len(secondHistory)-1].Role)

	var types []EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, EventToolStart)
	assert.Contains(t, types, EventToolEnd)
}

func TestExecutor_DispatchFailureContinuesLoop(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Type: "function", Name: "no_such_tool", Arguments: `{}`},
		}},
		{Content: "recovered"},
	}}
	exec := newTestExecutor(client, store, echoRegistry(t), 15)

	final, err := exec.Run(context.Background(), RunOptions{ConversationID: "c1", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", final)

	msgs := store.messages["c1"]
	assert.Contains(t, msgs[2].Content, "unknown tool")
}

func TestExecutor_IterationCapAppendsTruncationNotice(t *testing.T) {
	store := newMemStore()
	// The model requests a capability on every call, forever.
	client := &scriptedClient{script: []*llm.Assembled{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_x", Type: "function", Name: "echo", Arguments: `{"q":"again"}`},
		}},
	}}
	exec := newTestExecutor(client, store, echoRegistry(t), 3)

	final, err := exec.Run(context.Background(), RunOptions{ConversationID: "c1", Prompt: "loop"})
	require.NoError(t, err)
	assert.Contains(t, final, "limit reached")
	assert.Equal(t, 3, client.calls, "model invoked at most the cap")

	msgs := store.messages["c1"]
	last := msgs[len(msgs)-1]
	assert.Equal(t, llm.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "limit reached")
}

func TestExecutor_TransportErrorAbortsLoop(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{
		script: []*llm.Assembled{{Content: "unused"}},
		errs:   []error{errors.New("connection refused")},
	}
	exec := newTestExecutor(client, store, echoRegistry(t), 15)

	var events []Event
	_, err := exec.Run(context.Background(), RunOptions{
		ConversationID: "c1",
		Prompt:         "x",
		Sink:           func(e Event) { events = append(events, e) },
	})
	require.Error(t, err)

	var sawError bool
	for _, e := range events {
		if e.Type == EventError {
			sawError = true
			assert.Contains(t, e.Content, "connection refused")
		}
	}
	assert.True(t, sawError)
}

func TestExecutor_RetriesWithoutToolsWhenUnsupported(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{
		script: []*llm.Assembled{{Content: "unused"}, {Content: "plain answer"}},
		errs:   []error{&llm.APIError{Status: 400, Body: `{"error":"tools are not supported for this model"}`}},
	}
	exec := newTestExecutor(client, store, echoRegistry(t), 15)

	final, err := exec.Run(context.Background(), RunOptions{ConversationID: "c1", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", final)

	require.Len(t, client.requests, 2)
	assert.NotEmpty(t, client.requests[0].Tools)
	assert.Empty(t, client.requests[1].Tools, "retry strips the catalogue")
}

func TestExecutor_PromptRecordedSkipsUserMessage(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.AppendMessage(context.Background(), "c1", llm.Message{Role: llm.RoleUser, Content: "already there"}))

	client := &scriptedClient{script: []*llm.Assembled{{Content: "ok"}}}
	exec := newTestExecutor(client, store, echoRegistry(t), 15)

	_, err := exec.Run(context.Background(), RunOptions{
		ConversationID: "c1",
		Prompt:         "already there",
		PromptRecorded: true,
	})
	require.NoError(t, err)

	var userCount int
	for _, m := range store.messages["c1"] {
		if m.Role == llm.RoleUser {
			userCount++
		}
	}
	assert.Equal(t, 1, userCount)
}

func TestTruncationNoticeText(t *testing.T) {
	assert.True(t, strings.Contains(truncationNotice, "limit"))
}
