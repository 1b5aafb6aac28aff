package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/planner"
	"github.com/figaro-ai/figaro/internal/router"
)

// fixedPlanner returns the same plan for every request.
type fixedPlanner struct {
	plan       *planner.Plan
	categories []router.Category
}

func (p *fixedPlanner) Generate(_ context.Context, _ string, category router.Category, _ llm.StreamHandler) *planner.Plan {
	p.categories = append(p.categories, category)
	return p.plan
}

func newTestRunner(t *testing.T, client llm.Client, store Store, p Planner) *Runner {
	t.Helper()
	registry := echoRegistry(t)
	exec := NewExecutor(client, registry, store, 15, 50, zerolog.Nop())
	return NewRunner(exec, p, registry, t.TempDir()+"/memory.md", zerolog.Nop())
}

func TestNeedsPlanning(t *testing.T) {
	assert.False(t, needsPlanning(router.SimpleQA))
	assert.False(t, needsPlanning(router.LongRunning))
	assert.True(t, needsPlanning(router.ToolTask))
	assert.True(t, needsPlanning(router.ResearchTask))
	assert.True(t, needsPlanning(router.ComplexReasoning))
}

func TestRunTurn_SimpleQuestionSkipsPlanner(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{{Content: "Ulaanbaatar"}}}
	p := &fixedPlanner{plan: &planner.Plan{Steps: []planner.PlanStep{{ID: 1, Title: "x", Action: "final_answer", Description: "y"}}}}
	r := newTestRunner(t, client, store, p)

	final, err := r.RunTurn(context.Background(), "c1", "capital of Mongolia?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Ulaanbaatar", final)
	assert.Empty(t, p.categories, "planner not consulted for simple questions")
}

func TestRunTurn_NoPlanFallsBackToDirectRun(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{{Content: "done directly"}}}
	r := newTestRunner(t, client, store, &fixedPlanner{plan: nil})

	final, err := r.RunTurn(context.Background(), "c1", "search for the best espresso machine", nil)
	require.NoError(t, err)
	assert.Equal(t, "done directly", final)
	assert.Equal(t, 1, client.calls)
}

func TestRunTurn_PlanStepsShareOneConversation(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{
		{Content: "step one result"},
		{Content: "final summary"},
	}}
	plan := &planner.Plan{Steps: []planner.PlanStep{
		{ID: 1, Title: "Search", Action: "search", Description: "find it"},
		{ID: 2, Title: "Answer", Action: "final_answer", Description: "reply"},
	}}
	r := newTestRunner(t, client, store, &fixedPlanner{plan: plan})

	final, err := r.RunTurn(context.Background(), "c1", "search for the latest rates and summarize", nil)
	require.NoError(t, err)
	assert.Equal(t, "final summary", final)

	// One user message despite two steps; both steps appended assistants.
	var users, assistants int
	for _, m := range store.messages["c1"] {
		switch m.Role {
		case llm.RoleUser:
			users++
		case llm.RoleAssistant:
			assistants++
		}
	}
	assert.Equal(t, 1, users)
	assert.Equal(t, 2, assistants)

	// The second step's system prompt carries the step focus.
	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[1].SystemPrompt, "Current step: 2")
}

func TestRunTurn_FailedStepRetriedOnceThenSkipped(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{
		script: []*llm.Assembled{
			{Content: "unused"},
			{Content: "unused"},
			{Content: "step two result"},
		},
		errs: []error{errors.New("boom"), errors.New("boom again")},
	}
	plan := &planner.Plan{Steps: []planner.PlanStep{
		{ID: 1, Title: "Fetch", Action: "http", Description: "get data"},
		{ID: 2, Title: "Answer", Action: "final_answer", Description: "reply"},
	}}
	r := newTestRunner(t, client, store, &fixedPlanner{plan: plan})

	final, err := r.RunTurn(context.Background(), "c1", "search for rates and summarize them", nil)
	require.NoError(t, err)
	assert.Equal(t, "step two result", final)
	assert.Equal(t, 3, client.calls, "step one attempted twice, step two once")
}

func TestRunTurn_EmitsDoneLast(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{{Content: "hi"}}}
	r := newTestRunner(t, client, store, &fixedPlanner{})

	var events []Event
	_, err := r.RunTurn(context.Background(), "c1", "hello there?", func(e Event) { events = append(events, e) })
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestRunPrompt_NonStreaming(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{script: []*llm.Assembled{{Content: "task done"}}}
	r := newTestRunner(t, client, store, &fixedPlanner{})

	final, err := r.RunPrompt(context.Background(), "c1", "check the thing")
	require.NoError(t, err)
	assert.Equal(t, "task done", final)
}
