package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	shellTimeout   = 2 * time.Minute
	shellMaxOutput = 8 * 1024
)

// ShellTool runs commands inside the agent workspace with a hard timeout.
// Destructive command patterns are filtered upstream by the policy engine.
type ShellTool struct {
	workdir string
}

// NewShellTool pins command execution to the given working directory.
func NewShellTool(workdir string) *ShellTool {
	return &ShellTool{workdir: workdir}
}

func (s *ShellTool) Name() string {
	return "shell"
}

func (s *ShellTool) Description() string {
	return "Execute a shell command in the workspace. Long-running commands are killed after two minutes."
}

func (s *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (s *ShellTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Command) == "" {
		return "Error: empty command", nil
	}

	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", args.Command)
	cmd.Dir = s.workdir

	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if len(result) > shellMaxOutput {
		result = result[:shellMaxOutput] + "\n... (output truncated)"
	}
	if result == "" {
		result = "(no output)"
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Command timed out after %s\nOutput: %s", shellTimeout, result), nil
	}
	if err != nil {
		return fmt.Sprintf("Command failed with error: %v\nOutput: %s", err, result), nil
	}
	return result, nil
}
