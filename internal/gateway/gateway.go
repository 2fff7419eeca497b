package gateway

import (
	"context"
	"log"
	"sync"

	"github.com/rahul/kestrel/internal/agent"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(sessionID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Runner executes one user message and streams lifecycle events until the
// turn reaches a terminal state. The agent engine satisfies this.
type Runner interface {
	Execute(ctx context.Context, sessionID, message string) <-chan agent.Event
}

// turnLocks serializes turns per session so a user sending two messages
// back to back cannot interleave two plan decisions.
type turnLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTurnLocks() *turnLocks {
	return &turnLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *turnLocks) forSession(sessionID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[sessionID] = l
	}
	return l
}

// runTurn drains one engine turn and returns the text to show the user.
// Intermediate events are logged; only terminal events produce output.
func runTurn(ctx context.Context, runner Runner, sessionID, text string) string {
	for evt := range runner.Execute(ctx, sessionID, text) {
		switch evt.Type {
		case agent.EventStateUpdated:
			log.Printf("gateway: session %s state: %v", sessionID, evt.Data)
		case agent.EventClarificationRequested:
			if q, ok := evt.Data["question"].(string); ok {
				return q
			}
		case agent.EventComplete:
			if r, ok := evt.Data["response"].(string); ok {
				return r
			}
		case agent.EventError:
			log.Printf("gateway: session %s turn failed: %v", sessionID, evt.Data)
			return "Something went wrong while working on that. Please try again."
		}
	}
	return ""
}
