package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// SystemTool reports on the host the agent runs on. Useful for missions
// that watch disk usage, load or long-running processes.
type SystemTool struct {
	started time.Time
}

func NewSystemTool() *SystemTool {
	return &SystemTool{started: time.Now()}
}

func (s *SystemTool) Name() string {
	return "system"
}

func (s *SystemTool) Description() string {
	return "Inspect the host system. Actions: 'overview', 'disk', 'memory', 'processes'."
}

func (s *SystemTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"overview", "disk", "memory", "processes"},
				"description": "Which aspect of the host to report on.",
			},
		},
		"required": []string{"action"},
	}
}

func (s *SystemTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	switch args.Action {
	case "overview":
		return s.overview(ctx)
	case "disk":
		return runCommand(ctx, "df", "-h")
	case "memory":
		return runCommand(ctx, "free", "-h")
	case "processes":
		return runCommand(ctx, "ps", "-eo", "pid,pcpu,pmem,comm", "--sort=-pcpu")
	default:
		return "Invalid action.", nil
	}
}

func (s *SystemTool) overview(ctx context.Context) (string, error) {
	hostname, _ := os.Hostname()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Host: %s (%s/%s)\n", hostname, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Agent uptime: %s\n", time.Since(s.started).Round(time.Second))
	fmt.Fprintf(&sb, "Goroutines: %d\n", runtime.NumGoroutine())

	if uptime, err := runCommand(ctx, "uptime"); err == nil {
		fmt.Fprintf(&sb, "Load: %s\n", uptime)
	}
	return sb.String(), nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	result := strings.TrimSpace(string(output))
	if err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return fmt.Sprintf("Error: %s is not available on this host.", name), nil
		}
		return fmt.Sprintf("Error running %s: %v\nOutput: %s", name, err, result), nil
	}
	if len(result) > 4000 {
		result = result[:4000] + "\n... (output truncated)"
	}
	return result, nil
}
