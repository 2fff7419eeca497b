package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeReasoning   EventType = "reasoning"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeModelCall   EventType = "model_call"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeState       EventType = "state"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	PlanID    string    `json:"plan_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	telemetryPath string
	maxSize       int64
}

func NewLogger() *Logger {
	return &Logger{
		telemetryPath: filepath.Join("logs", "telemetry.jsonl"),
		maxSize:       10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeModelCall {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.telemetryPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.telemetryPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.telemetryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.telemetryPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.telemetryPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogReasoning(sessionID, planID, summary string) {
	l.Log(Event{
		Type:      EventTypeReasoning,
		SessionID: sessionID,
		PlanID:    planID,
		Data:      map[string]string{"summary": summary},
	})
}

func (l *Logger) LogToolCall(sessionID, planID, tool string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		SessionID: sessionID,
		PlanID:    planID,
		Data:      map[string]string{"tool": tool},
	})
}

func (l *Logger) LogStep(sessionID, planID string, position int, status string) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		PlanID:    planID,
		Data: map[string]any{
			"position": position,
			"status":   status,
		},
	})
}

func (l *Logger) LogState(sessionID string, data map[string]any) {
	l.Log(Event{
		Type:      EventTypeState,
		SessionID: sessionID,
		Data:      data,
	})
}

// LogModelCall records per-attempt telemetry for a backend model call.
// It never receives message content, only metadata.
func (l *Logger) LogModelCall(model string, attempt int, latency time.Duration, promptTokens, completionTokens int, errKind string) {
	l.Log(Event{
		Type: EventTypeModelCall,
		Data: map[string]any{
			"model":             model,
			"attempt":           attempt,
			"latency_ms":        latency.Milliseconds(),
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"error_kind":        errKind,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
