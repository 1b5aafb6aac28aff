package tools

import (
	"context"
	"fmt"
	"strings"
)

// TaskScheduler is the slice of the scheduler the schedule tool needs.
// The concrete scheduler lives a package up; the interface keeps tools
// free of that dependency.
type TaskScheduler interface {
	CreateTask(ctx context.Context, prompt, kind, value string, notify bool) (string, error)
	CancelTask(ctx context.Context, id string) error
}

// ScheduleTool lets the model create and cancel scheduled tasks on the
// user's behalf ("remind me at 9", "check this every hour").
type ScheduleTool struct {
	scheduler TaskScheduler
}

func NewScheduleTool(s TaskScheduler) *ScheduleTool {
	return &ScheduleTool{scheduler: s}
}

func (t *ScheduleTool) Name() string { return "schedule_task" }

func (t *ScheduleTool) Description() string {
	return "Schedule a prompt to run later: once at a specific time, repeatedly at a fixed interval, or on a cron expression. The result of each run is delivered as a notification."
}

func (t *ScheduleTool) Schema() ParamSchema {
	return ParamSchema{
		Type: "object",
		Properties: map[string]*Prop{
			"action": {
				Type:        "string",
				Description: "create schedules a new task, cancel removes one by id",
				Enum:        []string{"create", "cancel"},
			},
			"prompt": {
				Type:        "string",
				Description: "The prompt to execute when the task fires",
			},
			"kind": {
				Type:        "string",
				Description: "once runs at a timestamp, interval repeats, cron follows a cron expression",
				Enum:        []string{"once", "interval", "cron"},
			},
			"value": {
				Type:        "string",
				Description: "For once: RFC3339 timestamp. For interval: milliseconds between runs. For cron: a 5-field cron expression.",
			},
			"task_id": {
				Type:        "string",
				Description: "The task id to cancel (required for cancel)",
			},
		},
		Required: []string{"action"},
	}
}

func (t *ScheduleTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	switch args["action"].(string) {
	case "create":
		prompt, _ := args["prompt"].(string)
		kind, _ := args["kind"].(string)
		value, _ := args["value"].(string)
		if strings.TrimSpace(prompt) == "" {
			return Fail("prompt is required for create"), nil
		}
		if kind == "" || value == "" {
			return Fail("kind and value are required for create"), nil
		}
		id, err := t.scheduler.CreateTask(ctx, prompt, kind, value, true)
		if err != nil {
			return Fail(fmt.Sprintf("schedule task: %v", err)), nil
		}
		return Ok(fmt.Sprintf("Task scheduled with id %s.", id)), nil
	case "cancel":
		id, _ := args["task_id"].(string)
		if id == "" {
			return Fail("task_id is required for cancel"), nil
		}
		if err := t.scheduler.CancelTask(ctx, id); err != nil {
			return Fail(fmt.Sprintf("cancel task: %v", err)), nil
		}
		return Ok(fmt.Sprintf("Task %s cancelled.", id)), nil
	default:
		return Fail("action must be create or cancel"), nil
	}
}
