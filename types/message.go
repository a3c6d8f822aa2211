// Package types defines the shared conversation data model: messages,
// roles, and the per-thread turn state that the checkpoint store
// persists between turns.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// Message represents a single conversation message.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// IsSummary marks a synthetic message produced by context
	// compaction. Compaction never summarizes a summary twice.
	IsSummary bool `json:"is_summary,omitempty"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSummaryMessage creates a synthetic system message holding a
// compaction summary.
func NewSummaryMessage(content string) Message {
	m := NewMessage(RoleSystem, content)
	m.IsSummary = true
	return m
}

// CloneMessages returns a shallow copy of the message slice. Callers
// that rewrite history (compaction, refinement) operate on the copy so
// the original backing array is never mutated through an alias.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
