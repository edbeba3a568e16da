// Package conversation persists conversations, their messages, and the
// per-message reasoning traces in PostgreSQL. It also rebuilds the model
// feedback history from what it stored.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles. Tool interactions live in trace events, not message rows,
// so only the two top-level roles are stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageStatus tracks the lifecycle of an assistant message. User
// messages are always completed.
type MessageStatus string

const (
	// StatusStreaming marks an assistant message whose turn is running.
	StatusStreaming MessageStatus = "streaming"

	// StatusCompleted marks a message with a final answer.
	StatusCompleted MessageStatus = "completed"

	// StatusFailed marks an assistant message whose turn ended without
	// an answer.
	StatusFailed MessageStatus = "failed"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one chat thread.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one persisted conversation entry. Content holds the user text
// or the assistant's final answer; intermediate reasoning lives in the
// message's trace events.
type Message struct {
	ID             uuid.UUID     `json:"id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	SequenceNumber int32         `json:"sequence_number"`
	CreatedAt      time.Time     `json:"created_at"`
}
