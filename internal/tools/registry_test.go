package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is a configurable capability for registry tests.
type fakeTool struct {
	name   string
	schema ParamSchema
	exec   func(ctx context.Context, args map[string]any) (*Result, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake" }
func (f *fakeTool) Schema() ParamSchema { return f.schema }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	return f.exec(ctx, args)
}

func echoTool(name string) *fakeTool {
	return &fakeTool{
		name: name,
		schema: ParamSchema{
			Type: "object",
			Properties: map[string]*Prop{
				"q": {Type: "string"},
			},
			Required: []string{"q"},
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			return Ok(args["q"].(string)), nil
		},
	}
}

func newTestRegistry(t *testing.T, ts ...Tool) *Registry {
	t.Helper()
	r := NewRegistry(zerolog.Nop())
	for _, tool := range ts {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))
	err := r.Register(echoTool("echo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_DefinitionsInRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t, echoTool("bravo"), echoTool("alpha"))
	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "bravo", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
}

func TestRegistry_DispatchSuccess(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))
	res := r.Dispatch(context.Background(), "echo", `{"q":"hello"}`)
	require.True(t, res.Success)
	assert.Equal(t, "hello", res.Content)
}

func TestRegistry_DispatchUnknownName(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Dispatch(context.Background(), "nope", `{}`)
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "unknown tool")
}

func TestRegistry_DispatchMalformedArguments(t *testing.T) {
	r := newTestRegistry(t, echoTool("echo"))

	res := r.Dispatch(context.Background(), "echo", `{"q":`)
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "invalid arguments")

	res = r.Dispatch(context.Background(), "echo", `{}`)
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "missing required field")

	res = r.Dispatch(context.Background(), "echo", `{"q":42}`)
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "expected string")
}

func TestRegistry_DispatchExecutorErrorBecomesFailedResult(t *testing.T) {
	boom := &fakeTool{
		name:   "boom",
		schema: ParamSchema{Type: "object"},
		exec: func(_ context.Context, _ map[string]any) (*Result, error) {
			return nil, errors.New("network down")
		},
	}
	r := newTestRegistry(t, boom)
	res := r.Dispatch(context.Background(), "boom", "")
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "network down")
}

func TestRegistry_DispatchRecoversPanic(t *testing.T) {
	angry := &fakeTool{
		name:   "angry",
		schema: ParamSchema{Type: "object"},
		exec: func(_ context.Context, _ map[string]any) (*Result, error) {
			panic("nil map write")
		},
	}
	r := newTestRegistry(t, angry)
	res := r.Dispatch(context.Background(), "angry", "")
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "panicked")
}

func TestRegistry_DispatchEnumEnforced(t *testing.T) {
	pick := &fakeTool{
		name: "pick",
		schema: ParamSchema{
			Type: "object",
			Properties: map[string]*Prop{
				"mode": {Type: "string", Enum: []string{"fast", "slow"}},
			},
			Required: []string{"mode"},
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			return Ok(args["mode"].(string)), nil
		},
	}
	r := newTestRegistry(t, pick)

	res := r.Dispatch(context.Background(), "pick", `{"mode":"fast"}`)
	assert.True(t, res.Success)

	res = r.Dispatch(context.Background(), "pick", `{"mode":"warp"}`)
	require.False(t, res.Success)
	assert.Contains(t, res.Content, "must be one of")
}
