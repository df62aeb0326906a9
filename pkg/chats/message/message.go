// Package message defines the Message type used in LLM conversations.
package message

import (
	"time"

	"github.com/google/uuid"

	"github.com/sabercore/saber/pkg/chats/role"
)

// Citation references a retrieved document chunk that grounded an assistant
// message. Citations keep the order in which chunks were ranked.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// Message represents a single message in a conversation.
// It is a value type that copies cheaply and is immutable once appended
// to a chat.
type Message struct {
	ID        string     `json:"id"`
	Role      role.Role  `json:"role"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
	Citations []Citation `json:"citations,omitempty"`

	// Failed marks an assistant message that stands in for a completion
	// that could not be produced. Text holds the human-readable reason.
	Failed bool `json:"failed,omitempty"`
}

// New creates a message with the given role and text, stamped with a fresh
// ID and the current UTC time.
func New(r role.Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      r,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// NewFailed creates an assistant message marking a failed completion.
func NewFailed(reason string) Message {
	m := New(role.Assistant, reason)
	m.Failed = true
	return m
}

// WithCitations returns a copy of m carrying the given citations.
func (m Message) WithCitations(cs []Citation) Message {
	if len(cs) > 0 {
		m.Citations = append([]Citation(nil), cs...)
	}
	return m
}
