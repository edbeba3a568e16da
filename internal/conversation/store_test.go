package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/trace"
)

// mockQuerier is an in-memory Querier with call tracking.
type mockQuerier struct {
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]*Message          // by conversation
	traces        map[uuid.UUID][]*trace.Event      // by message
	calls         []string
	failWith      error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]*Message),
		traces:        make(map[uuid.UUID][]*trace.Event),
	}
}

func (m *mockQuerier) record(call string) error {
	m.calls = append(m.calls, call)
	return m.failWith
}

func (m *mockQuerier) InsertConversation(_ context.Context, title string) (*Conversation, error) {
	if err := m.record("InsertConversation"); err != nil {
		return nil, err
	}
	c := &Conversation{ID: uuid.New(), Title: title}
	m.conversations[c.ID] = c
	return c, nil
}

func (m *mockQuerier) GetConversation(_ context.Context, id uuid.UUID) (*Conversation, error) {
	if err := m.record("GetConversation"); err != nil {
		return nil, err
	}
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockQuerier) ListConversations(_ context.Context, _, _ int32) ([]*Conversation, error) {
	if err := m.record("ListConversations"); err != nil {
		return nil, err
	}
	var out []*Conversation
	for _, c := range m.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockQuerier) UpdateConversationTitle(_ context.Context, id uuid.UUID, title string) error {
	if err := m.record("UpdateConversationTitle"); err != nil {
		return err
	}
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Title = title
	return nil
}

func (m *mockQuerier) TouchConversation(_ context.Context, id uuid.UUID, count int32) error {
	if err := m.record("TouchConversation"); err != nil {
		return err
	}
	if c, ok := m.conversations[id]; ok {
		c.MessageCount = int(count)
	}
	return nil
}

func (m *mockQuerier) DeleteConversation(_ context.Context, id uuid.UUID) error {
	if err := m.record("DeleteConversation"); err != nil {
		return err
	}
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *mockQuerier) LockConversation(_ context.Context, id uuid.UUID) error {
	if err := m.record("LockConversation"); err != nil {
		return err
	}
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *mockQuerier) InsertMessage(_ context.Context, arg InsertMessageParams) (*Message, error) {
	if err := m.record("InsertMessage"); err != nil {
		return nil, err
	}
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: arg.ConversationID,
		Role:           arg.Role,
		Content:        arg.Content,
		Status:         arg.Status,
		SequenceNumber: arg.SequenceNumber,
	}
	m.messages[arg.ConversationID] = append(m.messages[arg.ConversationID], msg)
	return msg, nil
}

func (m *mockQuerier) ListMessages(_ context.Context, conversationID uuid.UUID, _, _ int32) ([]*Message, error) {
	if err := m.record("ListMessages"); err != nil {
		return nil, err
	}
	return m.messages[conversationID], nil
}

func (m *mockQuerier) UpdateMessage(_ context.Context, arg UpdateMessageParams) error {
	if err := m.record("UpdateMessage"); err != nil {
		return err
	}
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == arg.MessageID {
				msg.Content = arg.Content
				msg.Status = arg.Status
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *mockQuerier) MaxMessageSequence(_ context.Context, conversationID uuid.UUID) (int32, error) {
	if err := m.record("MaxMessageSequence"); err != nil {
		return 0, err
	}
	var maxSeq int32
	for _, msg := range m.messages[conversationID] {
		if msg.SequenceNumber > maxSeq {
			maxSeq = msg.SequenceNumber
		}
	}
	return maxSeq, nil
}

func (m *mockQuerier) InsertTraceEvent(_ context.Context, messageID uuid.UUID, ev *trace.Event) error {
	if err := m.record("InsertTraceEvent"); err != nil {
		return err
	}
	m.traces[messageID] = append(m.traces[messageID], ev)
	return nil
}

func (m *mockQuerier) ListTraceEvents(_ context.Context, messageID uuid.UUID) ([]*trace.Event, error) {
	if err := m.record("ListTraceEvents"); err != nil {
		return nil, err
	}
	return m.traces[messageID], nil
}

func newTestStore(q Querier) *Store {
	return New(q, nil, log.NewNop())
}

func TestCreateConversation(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)

	c, err := store.CreateConversation(context.Background(), "vacation policy")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if c.ID == uuid.Nil {
		t.Error("conversation should have an ID")
	}
	if c.Title != "vacation policy" {
		t.Errorf("title = %q", c.Title)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	store := newTestStore(newMockQuerier())

	_, err := store.GetConversation(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversation() error = %v, want ErrNotFound", err)
	}
}

func TestBeginTurnAssignsSequenceNumbers(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)
	ctx := context.Background()

	c, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	userMsg, assistantMsg, err := store.BeginTurn(ctx, c.ID, "first question")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if userMsg.SequenceNumber != 1 || assistantMsg.SequenceNumber != 2 {
		t.Errorf("sequence numbers = %d, %d; want 1, 2",
			userMsg.SequenceNumber, assistantMsg.SequenceNumber)
	}
	if userMsg.Role != RoleUser || userMsg.Status != StatusCompleted {
		t.Errorf("user message = %+v", userMsg)
	}
	if assistantMsg.Role != RoleAssistant || assistantMsg.Status != StatusStreaming {
		t.Errorf("assistant placeholder = %+v", assistantMsg)
	}

	// A second turn continues the sequence.
	userMsg2, assistantMsg2, err := store.BeginTurn(ctx, c.ID, "second question")
	if err != nil {
		t.Fatalf("second BeginTurn() error = %v", err)
	}
	if userMsg2.SequenceNumber != 3 || assistantMsg2.SequenceNumber != 4 {
		t.Errorf("second turn sequence numbers = %d, %d; want 3, 4",
			userMsg2.SequenceNumber, assistantMsg2.SequenceNumber)
	}
}

func TestFinalizeAssistantMessage(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)
	ctx := context.Background()

	c, _ := store.CreateConversation(ctx, "")
	_, assistantMsg, err := store.BeginTurn(ctx, c.ID, "hello")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}

	if err := store.FinalizeAssistantMessage(ctx, assistantMsg.ID, "the answer", StatusCompleted); err != nil {
		t.Fatalf("FinalizeAssistantMessage() error = %v", err)
	}

	msgs, err := store.GetMessages(ctx, c.ID, 0, 0)
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	final := msgs[len(msgs)-1]
	if final.Content != "the answer" || final.Status != StatusCompleted {
		t.Errorf("finalized message = %+v", final)
	}
}

func TestAppendAndReadTraceRoundTrip(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)
	ctx := context.Background()
	messageID := uuid.New()

	emitted := []*trace.Event{
		trace.NewThought("thinking"),
		trace.NewToolCall("c1", "document_search", map[string]any{"query": "x"}),
		trace.NewToolResult("c1", "document_search", "found", true),
		trace.NewAnswer("done"),
	}
	for i, ev := range emitted {
		ev.Seq = i + 1
		if err := store.AppendTraceEvent(ctx, messageID, ev); err != nil {
			t.Fatalf("AppendTraceEvent() error = %v", err)
		}
	}

	got, err := store.GetTraceEvents(ctx, messageID)
	if err != nil {
		t.Fatalf("GetTraceEvents() error = %v", err)
	}
	if len(got) != len(emitted) {
		t.Fatalf("got %d events, want %d", len(got), len(emitted))
	}
	for i, ev := range got {
		if ev.Type != emitted[i].Type || ev.Seq != emitted[i].Seq {
			t.Errorf("event %d = %+v, want %+v", i, ev, emitted[i])
		}
	}
	if err := trace.ValidateSequence(got); err != nil {
		t.Errorf("persisted sequence invalid: %v", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)
	ctx := context.Background()

	c, _ := store.CreateConversation(ctx, "")
	if err := store.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if err := store.DeleteConversation(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestBeginTurnPropagatesQuerierFailure(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)
	ctx := context.Background()

	c, _ := store.CreateConversation(ctx, "")
	q.failWith = errors.New("db down")

	if _, _, err := store.BeginTurn(ctx, c.ID, "hello"); err == nil {
		t.Error("BeginTurn() should propagate querier failure")
	}
}
