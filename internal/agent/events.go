package agent

import "time"

// EventType identifies a lifecycle event on the execution stream.
type EventType string

const (
	EventStateUpdated           EventType = "state_updated"
	EventThought                EventType = "thought"
	EventToolResult             EventType = "tool_result"
	EventClarificationRequested EventType = "clarification_requested"
	EventComplete               EventType = "complete"
	EventError                  EventType = "error"
)

// Event is what callers receive while a turn executes. Except for the final
// response on EventComplete, events carry metadata only, never prompt or
// response bodies.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
