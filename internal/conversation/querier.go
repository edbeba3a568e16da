package conversation

import (
	"context"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/trace"
)

// InsertMessageParams carries one message insert.
type InsertMessageParams struct {
	ConversationID uuid.UUID
	Role           string
	Content        string
	Status         MessageStatus
	SequenceNumber int32
}

// UpdateMessageParams finalizes a message's content and status.
type UpdateMessageParams struct {
	MessageID uuid.UUID
	Content   string
	Status    MessageStatus
}

// Querier defines the database operations the store needs. Interfaces are
// defined by the consumer: the store depends on this abstraction, the pgx
// implementation lives in queries.go, and tests substitute a mock.
type Querier interface {
	// Conversation operations
	InsertConversation(ctx context.Context, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, limit, offset int32) ([]*Conversation, error)
	UpdateConversationTitle(ctx context.Context, id uuid.UUID, title string) error
	TouchConversation(ctx context.Context, id uuid.UUID, messageCount int32) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	LockConversation(ctx context.Context, id uuid.UUID) error

	// Message operations
	InsertMessage(ctx context.Context, arg InsertMessageParams) (*Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int32) ([]*Message, error)
	UpdateMessage(ctx context.Context, arg UpdateMessageParams) error
	MaxMessageSequence(ctx context.Context, conversationID uuid.UUID) (int32, error)

	// Trace operations
	InsertTraceEvent(ctx context.Context, messageID uuid.UUID, ev *trace.Event) error
	ListTraceEvents(ctx context.Context, messageID uuid.UUID) ([]*trace.Event, error)
}
