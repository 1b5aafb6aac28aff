package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/figaro-ai/figaro/internal/planner"
	"github.com/figaro-ai/figaro/internal/tools"
)

const persona = `You are Figaro, a personal assistant. You are concise, direct and practical. You have capabilities you can call when the user's request needs outside information or an action; answer from your own knowledge when that is enough. Never invent facts you could verify with a capability instead.`

// PromptInput collects everything that goes into one system prompt.
type PromptInput struct {
	Memory       string
	Capabilities []tools.Definition
	Plan         *planner.Plan
	Step         *planner.PlanStep
	Now          time.Time
}

// BuildSystemPrompt assembles the system message: persona, current time,
// long-term memory, the capability catalogue, and the current plan step
// focus when running inside a plan.
func BuildSystemPrompt(in PromptInput) string {
	var sb strings.Builder
	sb.WriteString(persona)

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&sb, "\n\nCurrent date and time: %s.", now.Format("Monday, 2 January 2006, 15:04 MST"))

	if mem := strings.TrimSpace(in.Memory); mem != "" {
		sb.WriteString("\n\n## Long-term memory\nNotes from previous conversations:\n")
		sb.WriteString(mem)
	}

	if len(in.Capabilities) > 0 {
		sb.WriteString("\n\n## Capabilities\n")
		for _, def := range in.Capabilities {
			fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
		}
	}

	if in.Plan != nil && in.Step != nil {
		sb.WriteString("\n## Plan\nYou are executing a plan, one step at a time:\n")
		for _, step := range in.Plan.Steps {
			marker := " "
			if step.ID == in.Step.ID {
				marker = ">"
			}
			fmt.Fprintf(&sb, "%s %d. %s (%s)\n", marker, step.ID, step.Title, step.Action)
		}
		fmt.Fprintf(&sb, "\nCurrent step: %d. %s: %s\nFocus only on this step. Earlier steps' results are in the conversation.",
			in.Step.ID, in.Step.Title, in.Step.Description)
	}

	return sb.String()
}
