package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/router"
)

func TestParsePlan_ReasoningThenObject(t *testing.T) {
	text := `Let me think about this. The user wants current info, so I search first.
{"steps":[{"id":1,"title":"Search","action":"search","description":"find X"},{"id":2,"title":"Answer","action":"final_answer","description":"reply"}]}`

	plan := ParsePlan(text)
	require.NotNil(t, plan)
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, PlanStep{ID: 1, Title: "Search", Action: "search", Description: "find X"}, plan.Steps[0])
	assert.Equal(t, PlanStep{ID: 2, Title: "Answer", Action: "final_answer", Description: "reply"}, plan.Steps[1])
}

func TestParsePlan_BareArrayFallback(t *testing.T) {
	text := `Here is the plan:
[{"id":1,"title":"Read page","action":"browse","description":"open the docs"},
 {"id":2,"title":"Reply","action":"final_answer","description":"summarize"}]`

	plan := ParsePlan(text)
	require.NotNil(t, plan)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "browse", plan.Steps[0].Action)
}

func TestParsePlan_InvalidStepsDropped(t *testing.T) {
	text := `{"steps":[
		{"id":"one","title":"Bad id","action":"search","description":"x"},
		{"id":2,"title":"Missing action","description":"x"},
		{"id":3,"title":"Good","action":"memory","description":"note it"},
		{"id":4,"title":5,"action":"search","description":"x"}
	]}`

	plan := ParsePlan(text)
	require.NotNil(t, plan)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "Good", plan.Steps[0].Title)
}

func TestParsePlan_NoPlan(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain text", "I would just answer directly, no steps needed."},
		{"truncated json", `{"steps":[{"id":1,"title":"Search","action":"se`},
		{"empty steps", `{"steps":[]}`},
		{"all invalid", `{"steps":[{"id":"x"}]}`},
		{"empty input", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParsePlan(tt.text))
		})
	}
}

func TestParsePlan_BracesInsideStrings(t *testing.T) {
	text := `{"steps":[{"id":1,"title":"Tricky {one}","action":"search","description":"quote \" and } inside"}]}`
	plan := ParsePlan(text)
	require.NotNil(t, plan)
	assert.Equal(t, "Tricky {one}", plan.Steps[0].Title)
	assert.Equal(t, `quote " and } inside`, plan.Steps[0].Description)
}

// stubClient returns a canned assembled message and pushes its content
// through the handler like a real stream would.
type stubClient struct {
	content string
	err     error
	lastReq *llm.ChatRequest
}

func (s *stubClient) ChatStream(_ context.Context, req *llm.ChatRequest, handler llm.StreamHandler) (*llm.Assembled, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if handler != nil {
		handler.Token(s.content)
	}
	return &llm.Assembled{Content: s.content}, nil
}

func TestGenerate_StreamsReasoningAndWithholdsTools(t *testing.T) {
	stub := &stubClient{content: `thinking... {"steps":[{"id":1,"title":"A","action":"final_answer","description":"d"}]}`}
	p := New(stub, "", zerolog.Nop())

	var reasoned strings.Builder
	handler := llm.HandlerFuncs{OnReasoning: func(f string) { reasoned.WriteString(f) }}

	plan := p.Generate(context.Background(), "plan something", router.ComplexReasoning, handler)
	require.NotNil(t, plan)
	require.Len(t, plan.Steps, 1)

	assert.Empty(t, stub.lastReq.Tools, "planning call must not offer tools")
	assert.Contains(t, reasoned.String(), "thinking", "plan text streams as reasoning")
}

func TestGenerate_FailureYieldsNoPlan(t *testing.T) {
	stub := &stubClient{err: assert.AnError}
	p := New(stub, "", zerolog.Nop())
	assert.Nil(t, p.Generate(context.Background(), "x", router.SimpleQA, nil))
}
