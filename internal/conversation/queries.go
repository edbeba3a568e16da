package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/candor0/candor/internal/trace"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same querier runs
// inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGQuerier is the PostgreSQL implementation of Querier.
type PGQuerier struct {
	db DBTX
}

// NewQuerier creates a querier over a pool or transaction.
func NewQuerier(db DBTX) *PGQuerier {
	return &PGQuerier{db: db}
}

const insertConversationSQL = `
INSERT INTO conversations (title)
VALUES ($1)
RETURNING id, title, created_at, updated_at, message_count`

func (q *PGQuerier) InsertConversation(ctx context.Context, title string) (*Conversation, error) {
	var titleArg *string
	if title != "" {
		titleArg = &title
	}
	row := q.db.QueryRow(ctx, insertConversationSQL, titleArg)
	return scanConversation(row)
}

const getConversationSQL = `
SELECT id, title, created_at, updated_at, message_count
FROM conversations
WHERE id = $1`

func (q *PGQuerier) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := q.db.QueryRow(ctx, getConversationSQL, uuidToPg(id))
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, err
}

const listConversationsSQL = `
SELECT id, title, created_at, updated_at, message_count
FROM conversations
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2`

func (q *PGQuerier) ListConversations(ctx context.Context, limit, offset int32) ([]*Conversation, error) {
	rows, err := q.db.Query(ctx, listConversationsSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const updateTitleSQL = `
UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`

func (q *PGQuerier) UpdateConversationTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := q.db.Exec(ctx, updateTitleSQL, uuidToPg(id), title)
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

const touchConversationSQL = `
UPDATE conversations SET updated_at = now(), message_count = $2 WHERE id = $1`

func (q *PGQuerier) TouchConversation(ctx context.Context, id uuid.UUID, messageCount int32) error {
	if _, err := q.db.Exec(ctx, touchConversationSQL, uuidToPg(id), messageCount); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

const deleteConversationSQL = `DELETE FROM conversations WHERE id = $1`

func (q *PGQuerier) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteConversationSQL, uuidToPg(id))
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// LockConversation takes a row lock so concurrent turns on one
// conversation serialize their sequence numbers. Only meaningful inside a
// transaction.
const lockConversationSQL = `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`

func (q *PGQuerier) LockConversation(ctx context.Context, id uuid.UUID) error {
	var locked pgtype.UUID
	if err := q.db.QueryRow(ctx, lockConversationSQL, uuidToPg(id)).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("lock conversation: %w", err)
	}
	return nil
}

const insertMessageSQL = `
INSERT INTO messages (conversation_id, role, content, status, sequence_number)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, role, content, status, sequence_number, created_at`

func (q *PGQuerier) InsertMessage(ctx context.Context, arg InsertMessageParams) (*Message, error) {
	row := q.db.QueryRow(ctx, insertMessageSQL,
		uuidToPg(arg.ConversationID), arg.Role, arg.Content, string(arg.Status), arg.SequenceNumber)
	return scanMessage(row)
}

const listMessagesSQL = `
SELECT id, conversation_id, role, content, status, sequence_number, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY sequence_number ASC
LIMIT $2 OFFSET $3`

func (q *PGQuerier) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := q.db.Query(ctx, listMessagesSQL, uuidToPg(conversationID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const updateMessageSQL = `
UPDATE messages SET content = $2, status = $3 WHERE id = $1`

func (q *PGQuerier) UpdateMessage(ctx context.Context, arg UpdateMessageParams) error {
	tag, err := q.db.Exec(ctx, updateMessageSQL,
		uuidToPg(arg.MessageID), arg.Content, string(arg.Status))
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", arg.MessageID, ErrNotFound)
	}
	return nil
}

const maxMessageSequenceSQL = `
SELECT COALESCE(MAX(sequence_number), 0)
FROM messages
WHERE conversation_id = $1`

func (q *PGQuerier) MaxMessageSequence(ctx context.Context, conversationID uuid.UUID) (int32, error) {
	var maxSeq int32
	if err := q.db.QueryRow(ctx, maxMessageSequenceSQL, uuidToPg(conversationID)).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("max message sequence: %w", err)
	}
	return maxSeq, nil
}

const insertTraceEventSQL = `
INSERT INTO trace_events (message_id, seq, type, content, tool_name, tool_call_id, tool_args, success, recoverable, citations, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (q *PGQuerier) InsertTraceEvent(ctx context.Context, messageID uuid.UUID, ev *trace.Event) error {
	toolArgs, err := marshalNullable(ev.ToolArgs, len(ev.ToolArgs) > 0)
	if err != nil {
		return fmt.Errorf("marshal tool args: %w", err)
	}
	citations, err := marshalNullable(ev.Citations, len(ev.Citations) > 0)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = q.db.Exec(ctx, insertTraceEventSQL,
		uuidToPg(messageID), ev.Seq, string(ev.Type), ev.Content,
		nullableString(ev.ToolName), nullableString(ev.ToolCallID),
		toolArgs, ev.Success, ev.Recoverable, citations, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert trace event: %w", err)
	}
	return nil
}

const listTraceEventsSQL = `
SELECT seq, type, content, tool_name, tool_call_id, tool_args, success, recoverable, citations, created_at
FROM trace_events
WHERE message_id = $1
ORDER BY seq ASC`

func (q *PGQuerier) ListTraceEvents(ctx context.Context, messageID uuid.UUID) ([]*trace.Event, error) {
	rows, err := q.db.Query(ctx, listTraceEventsSQL, uuidToPg(messageID))
	if err != nil {
		return nil, fmt.Errorf("list trace events: %w", err)
	}
	defer rows.Close()

	var out []*trace.Event
	for rows.Next() {
		ev, err := scanTraceEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		id        pgtype.UUID
		title     *string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		msgCount  int32
	)
	if err := row.Scan(&id, &title, &createdAt, &updatedAt, &msgCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c := &Conversation{
		ID:           pgToUUID(id),
		CreatedAt:    createdAt.Time,
		UpdatedAt:    updatedAt.Time,
		MessageCount: int(msgCount),
	}
	if title != nil {
		c.Title = *title
	}
	return c, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		id        pgtype.UUID
		convID    pgtype.UUID
		role      string
		content   string
		status    string
		seq       int32
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &convID, &role, &content, &status, &seq, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &Message{
		ID:             pgToUUID(id),
		ConversationID: pgToUUID(convID),
		Role:           role,
		Content:        content,
		Status:         MessageStatus(status),
		SequenceNumber: seq,
		CreatedAt:      createdAt.Time,
	}, nil
}

func scanTraceEvent(row pgx.Row) (*trace.Event, error) {
	var (
		seq         int32
		evType      string
		content     string
		toolName    *string
		toolCallID  *string
		toolArgs    []byte
		success     *bool
		recoverable *bool
		citations   []byte
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&seq, &evType, &content, &toolName, &toolCallID,
		&toolArgs, &success, &recoverable, &citations, &createdAt); err != nil {
		return nil, fmt.Errorf("scan trace event: %w", err)
	}

	ev := &trace.Event{
		Type:        trace.EventType(evType),
		Content:     content,
		Seq:         int(seq),
		Success:     success,
		Recoverable: recoverable,
		Timestamp:   createdAt.Time,
	}
	if toolName != nil {
		ev.ToolName = *toolName
	}
	if toolCallID != nil {
		ev.ToolCallID = *toolCallID
	}
	if len(toolArgs) > 0 {
		if err := json.Unmarshal(toolArgs, &ev.ToolArgs); err != nil {
			return nil, fmt.Errorf("unmarshal tool args: %w", err)
		}
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &ev.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
	}
	return ev, nil
}

func marshalNullable(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgToUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return id.Bytes
}
