package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/planner"
	"github.com/figaro-ai/figaro/internal/router"
	"github.com/figaro-ai/figaro/internal/tools"
)

// Planner generates a step list for a request, or nil for none.
type Planner interface {
	Generate(ctx context.Context, input string, category router.Category, handler llm.StreamHandler) *planner.Plan
}

// Runner drives one full turn: classify the input, plan when the category
// warrants it, then run the executor once per step (or once directly).
type Runner struct {
	exec       *Executor
	planner    Planner
	registry   *tools.Registry
	memoryPath string
	log        zerolog.Logger
}

// NewRunner wires the turn pipeline together.
func NewRunner(exec *Executor, p Planner, registry *tools.Registry, memoryPath string, log zerolog.Logger) *Runner {
	return &Runner{
		exec:       exec,
		planner:    p,
		registry:   registry,
		memoryPath: memoryPath,
		log:        log,
	}
}

// needsPlanning gates the planner by category. Quick questions answer
// directly; scheduling requests go straight to the executor, whose
// schedule capability does the work.
func needsPlanning(c router.Category) bool {
	switch c {
	case router.ToolTask, router.ResearchTask, router.ComplexReasoning:
		return true
	default:
		return false
	}
}

// RunTurn executes one user turn against a conversation, streaming events
// to sink. The returned string is the final answer. The last event is
// always done.
func (r *Runner) RunTurn(ctx context.Context, conversationID, input string, sink EventSink) (string, error) {
	defer sink.emit(Event{Type: EventDone})

	category := router.Classify(input)
	r.log.Debug().Str("category", string(category)).Msg("input classified")

	var plan *planner.Plan
	if needsPlanning(category) && r.planner != nil {
		handler := llm.HandlerFuncs{
			OnReasoning: func(f string) { sink.emit(Event{Type: EventReasoning, Content: f}) },
		}
		plan = r.planner.Generate(ctx, input, category, handler)
	}

	if plan == nil {
		return r.exec.Run(ctx, RunOptions{
			ConversationID: conversationID,
			Prompt:         input,
			SystemPrompt:   r.systemPrompt(nil, nil),
			Sink:           sink,
		})
	}
	return r.runPlan(ctx, conversationID, input, plan, sink)
}

// runPlan executes plan steps sequentially against one shared
// conversation. A failed step is retried once; a second failure is
// recorded and the plan moves on rather than aborting.
func (r *Runner) runPlan(ctx context.Context, conversationID, input string, plan *planner.Plan, sink EventSink) (string, error) {
	var final string
	var lastErr error
	promptRecorded := false

	for i := range plan.Steps {
		step := &plan.Steps[i]
		opts := RunOptions{
			ConversationID: conversationID,
			Prompt:         input,
			SystemPrompt:   r.systemPrompt(plan, step),
			PromptRecorded: promptRecorded,
			Sink:           sink,
		}

		result, err := r.exec.Run(ctx, opts)
		promptRecorded = true
		if err != nil {
			r.log.Warn().Err(err).Int("step", step.ID).Msg("plan step failed, retrying")
			opts.PromptRecorded = true
			result, err = r.exec.Run(ctx, opts)
		}
		if err != nil {
			r.log.Error().Err(err).Int("step", step.ID).Msg("plan step failed twice, moving on")
			lastErr = fmt.Errorf("step %d (%s): %w", step.ID, step.Title, err)
			continue
		}
		final = result
	}

	if final == "" && lastErr != nil {
		return "", lastErr
	}
	return final, nil
}

// RunPrompt executes one non-streaming turn. The scheduler uses this to
// run task prompts.
func (r *Runner) RunPrompt(ctx context.Context, conversationID, prompt string) (string, error) {
	return r.exec.Run(ctx, RunOptions{
		ConversationID: conversationID,
		Prompt:         prompt,
		SystemPrompt:   r.systemPrompt(nil, nil),
	})
}

func (r *Runner) systemPrompt(plan *planner.Plan, step *planner.PlanStep) string {
	return BuildSystemPrompt(PromptInput{
		Memory:       tools.ReadMemory(r.memoryPath),
		Capabilities: r.registry.Definitions(),
		Plan:         plan,
		Step:         step,
	})
}
