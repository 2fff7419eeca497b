package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type ScheduleStore interface {
	AddTask(sessionID string, description string, interval time.Duration) error
	ClearTasks(sessionID string) error
}

type ScheduleTool struct {
	Store ScheduleStore
}

func NewScheduleTool(store ScheduleStore) *ScheduleTool {
	return &ScheduleTool{Store: store}
}

func (c *ScheduleTool) Name() string {
	return "schedule_task"
}

func (c *ScheduleTool) Description() string {
	return "Manage recurring missions: 'schedule' a new one or 'clear' all current ones."
}

func (c *ScheduleTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"schedule", "clear"},
				"description": "The action to perform: 'schedule' a new mission or 'clear' all of them.",
			},
			"task_description": map[string]any{
				"type":        "string",
				"description": "What the agent should do (only for 'schedule' action)",
			},
			"interval_seconds": map[string]any{
				"type":        "integer",
				"description": "The interval in seconds (minimum 60s, only for 'schedule' action)",
			},
		},
		"required": []string{"action"},
	}
}

func (c *ScheduleTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action   string `json:"action"`
		Desc     string `json:"task_description"`
		Interval int    `json:"interval_seconds"`
	}

	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	sessionID, ok := SessionIDFrom(ctx)
	if !ok {
		return "", fmt.Errorf("missing session id in context")
	}

	switch args.Action {
	case "clear":
		if err := c.Store.ClearTasks(sessionID); err != nil {
			return "", fmt.Errorf("failed to clear tasks: %v", err)
		}
		return "Successfully cleared all your scheduled tasks.", nil

	case "schedule":
		if args.Interval < 60 {
			return "Error: Minimum interval is 60 seconds to prevent spamming.", nil
		}
		if err := c.Store.AddTask(sessionID, args.Desc, time.Duration(args.Interval)*time.Second); err != nil {
			return "", fmt.Errorf("failed to schedule task: %v", err)
		}
		return fmt.Sprintf("Successfully scheduled task: '%s' every %d seconds.", args.Desc, args.Interval), nil

	default:
		return "Invalid action. Use 'schedule' or 'clear'.", nil
	}
}
