package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// ClarificationError is returned by a tool that cannot proceed without user
// input. The engine suspends the plan and relays the question instead of
// marking the step failed.
type ClarificationError struct {
	Question string
}

func (e *ClarificationError) Error() string {
	return "tool requires user input: " + e.Question
}

type ctxKey int

// sessionIDKey carries the owning session id into tool executions.
const sessionIDKey ctxKey = iota

// WithSessionID annotates a context with the session invoking the tool.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFrom extracts the invoking session id, if present.
func SessionIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Catalog renders a stable "name: description" listing for planner prompts.
func (r *Registry) Catalog() string {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, r.Tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}
