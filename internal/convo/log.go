package convo

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Role tags a conversation entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one ordered entry in the conversation log.
type Message struct {
	Role    Role
	Content string
}

// Summarizer produces a short synthetic summary of a transcript chunk.
// The model gateway provides the production implementation.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Log is an append-only conversation anchored by one stable system message.
// The system message is set at construction and never rewritten: mission text
// only ever enters as ordinary user messages, so resetting a mission can
// never desynchronize the system prompt from the visible history.
type Log struct {
	mu        sync.Mutex
	messages  []Message
	threshold int
	keep      int
	summarize Summarizer
}

// New creates a Log whose first entry is the given system prompt.
// threshold is the message count above which compression kicks in;
// keep is how many recent messages compression leaves untouched.
func New(systemPrompt string, threshold, keep int, summarizer Summarizer) *Log {
	if threshold < 4 {
		threshold = 4
	}
	if keep < 1 {
		keep = 1
	}
	if keep > threshold-2 {
		keep = threshold - 2
	}
	return &Log{
		messages:  []Message{{Role: RoleSystem, Content: systemPrompt}},
		threshold: threshold,
		keep:      keep,
		summarize: summarizer,
	}
}

// Append adds a message to the end of the log. System entries are rejected:
// there is exactly one, fixed at index 0.
func (l *Log) Append(role Role, content string) {
	if role == RoleSystem {
		log.Printf("conversation: ignoring attempt to append a second system message")
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, Message{Role: role, Content: content})
}

// Len returns the current message count, system message included.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Snapshot returns a copy of the ordered message sequence.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// CompressIfNeeded replaces the oldest non-system messages with a single
// synthetic summary once the log exceeds its threshold. If the summarization
// call fails the prefix is dropped outright; compression must never block a
// turn. Either way the system message stays at index 0 and the count
// strictly decreases.
func (l *Log) CompressIfNeeded(ctx context.Context) bool {
	l.mu.Lock()
	if len(l.messages) <= l.threshold {
		l.mu.Unlock()
		return false
	}
	prefix := make([]Message, len(l.messages)-1-l.keep)
	copy(prefix, l.messages[1:len(l.messages)-l.keep])
	l.mu.Unlock()

	summary, err := l.summarizePrefix(ctx, prefix)

	l.mu.Lock()
	defer l.mu.Unlock()

	tail := make([]Message, len(l.messages)-1-len(prefix))
	copy(tail, l.messages[1+len(prefix):])

	compacted := []Message{l.messages[0]}
	if err == nil && summary != "" {
		compacted = append(compacted, Message{
			Role:    RoleAssistant,
			Content: "Summary of earlier conversation: " + summary,
		})
	} else if err != nil {
		log.Printf("conversation: summarization failed, truncating %d messages: %v", len(prefix), err)
	}
	l.messages = append(compacted, tail...)
	return true
}

func (l *Log) summarizePrefix(ctx context.Context, prefix []Message) (string, error) {
	if l.summarize == nil {
		return "", fmt.Errorf("no summarizer configured")
	}
	var sb strings.Builder
	for _, m := range prefix {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return l.summarize.Summarize(ctx, sb.String())
}

// ModelMessages converts the log into langchaingo message content for a
// gateway call. Tool entries are replayed as human messages because the
// backing providers reject tool messages that lack a live tool-call id.
func (l *Log) ModelMessages() []llms.MessageContent {
	snapshot := l.Snapshot()
	out := make([]llms.MessageContent, 0, len(snapshot))
	for _, m := range snapshot {
		role := m.Role.ChatMessageType()
		content := m.Content
		if m.Role == RoleTool {
			role = llms.ChatMessageTypeHuman
			content = "Tool result: " + content
		}
		out = append(out, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(content)},
		})
	}
	return out
}

// ChatMessageType maps a Role onto langchaingo's message taxonomy.
func (r Role) ChatMessageType() llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}
