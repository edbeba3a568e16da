package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/trace"
)

// defaultHistoryLimit bounds how many messages a history load pulls.
const defaultHistoryLimit = 1000

// Store manages conversation persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines. Per-conversation
// write ordering is enforced with a row lock, not application state.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // transaction support; nil in mock-querier tests
	logger  log.Logger
}

// New creates a Store. pool may be nil for tests with a mock querier, in
// which case writes run non-transactionally.
func New(querier Querier, pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{querier: querier, pool: pool, logger: logger}
}

// CreateConversation creates a new conversation. Title may be empty; it is
// usually filled in later by background title generation.
func (s *Store) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	c, err := s.querier.InsertConversation(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("created conversation", "id", c.ID, "title", c.Title)
	return c, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return s.querier.GetConversation(ctx, id)
}

// ListConversations lists conversations ordered by recency.
func (s *Store) ListConversations(ctx context.Context, limit, offset int32) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querier.ListConversations(ctx, limit, offset)
}

// SetTitle updates a conversation's title.
func (s *Store) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	return s.querier.UpdateConversationTitle(ctx, id, title)
}

// DeleteConversation deletes a conversation and everything under it
// (messages and trace events cascade).
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	if err := s.querier.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// GetMessages retrieves a conversation's messages in sequence order.
func (s *Store) GetMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int32) ([]*Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.querier.ListMessages(ctx, conversationID, limit, offset)
}

// GetTraceEvents retrieves a message's trace events in emission order.
func (s *Store) GetTraceEvents(ctx context.Context, messageID uuid.UUID) ([]*trace.Event, error) {
	return s.querier.ListTraceEvents(ctx, messageID)
}

// BeginTurn atomically appends the user message and a streaming assistant
// placeholder, assigning consecutive sequence numbers under the
// conversation row lock so concurrent turns cannot interleave.
func (s *Store) BeginTurn(ctx context.Context, conversationID uuid.UUID, userText string) (userMsg, assistantMsg *Message, err error) {
	if s.pool == nil {
		return s.beginTurnWith(ctx, s.querier, conversationID, userText)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", rbErr)
		}
	}()

	txQuerier := NewQuerier(tx)
	if err := txQuerier.LockConversation(ctx, conversationID); err != nil {
		return nil, nil, err
	}

	userMsg, assistantMsg, err = s.beginTurnWith(ctx, txQuerier, conversationID, userText)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("turn started",
		"conversation_id", conversationID,
		"user_message_id", userMsg.ID,
		"assistant_message_id", assistantMsg.ID)
	return userMsg, assistantMsg, nil
}

// beginTurnWith inserts the turn's two message rows through the given
// querier. Callers provide locking (or accept its absence in tests).
func (s *Store) beginTurnWith(ctx context.Context, q Querier, conversationID uuid.UUID, userText string) (*Message, *Message, error) {
	maxSeq, err := q.MaxMessageSequence(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	userMsg, err := q.InsertMessage(ctx, InsertMessageParams{
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        userText,
		Status:         StatusCompleted,
		SequenceNumber: maxSeq + 1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("insert user message: %w", err)
	}

	assistantMsg, err := q.InsertMessage(ctx, InsertMessageParams{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Status:         StatusStreaming,
		SequenceNumber: maxSeq + 2,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("insert assistant placeholder: %w", err)
	}

	if err := q.TouchConversation(ctx, conversationID, maxSeq+2); err != nil {
		return nil, nil, err
	}

	return userMsg, assistantMsg, nil
}

// FinalizeAssistantMessage writes the turn's outcome onto the assistant
// placeholder: the final answer with StatusCompleted, or StatusFailed with
// whatever partial content is useful.
func (s *Store) FinalizeAssistantMessage(ctx context.Context, messageID uuid.UUID, content string, status MessageStatus) error {
	if err := s.querier.UpdateMessage(ctx, UpdateMessageParams{
		MessageID: messageID,
		Content:   content,
		Status:    status,
	}); err != nil {
		return err
	}
	s.logger.Debug("finalized assistant message", "id", messageID, "status", status)
	return nil
}

// AppendTraceEvent persists one trace event for the given assistant
// message. Satisfies the sink's Appender interface.
func (s *Store) AppendTraceEvent(ctx context.Context, messageID uuid.UUID, ev *trace.Event) error {
	return s.querier.InsertTraceEvent(ctx, messageID, ev)
}
