// Package planner turns a user request into an ordered step list by asking
// the model to reason out loud and then emit a structured plan. Planning is
// best-effort: any parse or transport failure yields no plan, and the
// caller falls back to a single direct execution.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/router"
)

// Step actions the executor understands. final_answer closes the plan.
const (
	ActionSearch      = "search"
	ActionBrowse      = "browse"
	ActionHTTP        = "http"
	ActionSchedule    = "schedule"
	ActionMemory      = "memory"
	ActionFinalAnswer = "final_answer"
)

// PlanStep is one unit of work in a plan.
type PlanStep struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Plan is an ordered list of steps for one user request.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// Planner generates plans through one model call with capabilities
// withheld, so the model reasons and writes JSON instead of requesting
// tool calls.
type Planner struct {
	client llm.Client
	model  string
	log    zerolog.Logger
}

// New creates a planner. model may be empty to use the client's default.
func New(client llm.Client, model string, log zerolog.Logger) *Planner {
	return &Planner{client: client, model: model, log: log}
}

const planSystemPrompt = `You are a planning assistant. Break the user's request into a short ordered list of steps.

First think through the request in free-form text. Then output exactly one JSON object of the form:

{"steps": [{"id": 1, "title": "short name", "action": "search", "description": "what to do"}]}

Rules:
- "action" must be one of: search, browse, http, schedule, memory, final_answer.
- Use the fewest steps that get the job done, usually 2 to 4.
- The last step must have action "final_answer".
- Output the JSON object after your reasoning, with no markdown fence.`

// Generate asks the model for a plan, streaming its reasoning through
// handler as it arrives. It returns nil when no usable plan was produced.
func (p *Planner) Generate(ctx context.Context, input string, category router.Category, handler llm.StreamHandler) *Plan {
	req := &llm.ChatRequest{
		Model:        p.model,
		SystemPrompt: planSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf("Request (%s):\n%s", category, input)},
		},
	}

	// Plan text arrives on the content channel; surface it as reasoning
	// so callers render it as thinking, not as the answer.
	reroute := llm.HandlerFuncs{
		OnToken: func(fragment string) {
			if handler != nil {
				handler.Reasoning(fragment)
			}
		},
		OnReasoning: func(fragment string) {
			if handler != nil {
				handler.Reasoning(fragment)
			}
		},
	}

	out, err := p.client.ChatStream(ctx, req, reroute)
	if err != nil {
		p.log.Warn().Err(err).Msg("plan generation failed")
		return nil
	}

	plan := ParsePlan(out.Content + "\n" + out.Reasoning)
	if plan == nil {
		p.log.Debug().Msg("no parseable plan in model output")
		return nil
	}
	p.log.Info().Int("steps", len(plan.Steps)).Msg("plan generated")
	return plan
}

// ParsePlan extracts a step list from free-form model output. It first
// looks for an object containing a "steps" array, then falls back to a
// bare array shaped like a step list. Nil means no plan.
func ParsePlan(text string) *Plan {
	if obj := findStepsObject(text); obj != "" {
		var wrapper struct {
			Steps []json.RawMessage `json:"steps"`
		}
		if err := json.Unmarshal([]byte(obj), &wrapper); err == nil {
			if steps := validateSteps(wrapper.Steps); len(steps) > 0 {
				return &Plan{Steps: steps}
			}
		}
	}

	if arr := findJSONArray(text); arr != "" {
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(arr), &raw); err == nil {
			if steps := validateSteps(raw); len(steps) > 0 {
				return &Plan{Steps: steps}
			}
		}
	}
	return nil
}

// validateSteps keeps only steps whose four fields are present with the
// right primitive types, in their original order.
func validateSteps(raw []json.RawMessage) []PlanStep {
	var steps []PlanStep
	for _, r := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(r, &fields); err != nil {
			continue
		}

		var step PlanStep
		if err := json.Unmarshal(fields["id"], &step.ID); err != nil {
			continue
		}
		if err := json.Unmarshal(fields["title"], &step.Title); err != nil {
			continue
		}
		if err := json.Unmarshal(fields["action"], &step.Action); err != nil {
			continue
		}
		if err := json.Unmarshal(fields["description"], &step.Description); err != nil {
			continue
		}
		if step.Title == "" || step.Action == "" {
			continue
		}
		steps = append(steps, step)
	}
	return steps
}

// findStepsObject locates the JSON object enclosing the first "steps" key.
func findStepsObject(text string) string {
	idx := strings.Index(text, `"steps"`)
	if idx < 0 {
		return ""
	}
	open := strings.LastIndex(text[:idx], "{")
	if open < 0 {
		return ""
	}
	return matchBalanced(text[open:], '{', '}')
}

// findJSONArray locates the first balanced top-level JSON array.
func findJSONArray(text string) string {
	open := strings.Index(text, "[")
	if open < 0 {
		return ""
	}
	return matchBalanced(text[open:], '[', ']')
}

// matchBalanced returns the prefix of s spanning from its opening
// delimiter to the matching close, skipping string literals and escapes.
func matchBalanced(s string, open, close byte) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
