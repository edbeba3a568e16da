package conversation

import (
	"context"
	"testing"

	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/trace"
)

func TestExpandAssistantTurnDirectAnswer(t *testing.T) {
	msg := &Message{Role: RoleAssistant, Content: "Paris.", Status: StatusCompleted}
	events := []*trace.Event{trace.NewAnswer("Paris.")}

	out := expandAssistantTurn(msg, events)
	if len(out) != 1 {
		t.Fatalf("got %d messages, want 1", len(out))
	}
	if out[0].Role != model.RoleAssistant || out[0].Content != "Paris." || out[0].ToolCall != nil {
		t.Errorf("message = %+v", out[0])
	}
}

func TestExpandAssistantTurnWithToolExchange(t *testing.T) {
	msg := &Message{Role: RoleAssistant, Content: "It is 10:00.", Status: StatusCompleted}
	events := []*trace.Event{
		trace.NewThought("I should check the clock."),
		trace.NewToolCall("c1", "current_time", map[string]any{"timezone": "UTC"}),
		trace.NewToolResult("c1", "current_time", "10:00", true),
		trace.NewAnswer("It is 10:00."),
	}

	out := expandAssistantTurn(msg, events)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}

	if out[0].Role != model.RoleAssistant || out[0].ToolCall == nil {
		t.Fatalf("message 0 = %+v, want assistant with tool call", out[0])
	}
	if out[0].Content != "I should check the clock." {
		t.Errorf("thought = %q", out[0].Content)
	}
	if out[0].ToolCall.Name != "current_time" || out[0].ToolCall.ID != "c1" {
		t.Errorf("tool call = %+v", out[0].ToolCall)
	}

	if out[1].Role != model.RoleTool || out[1].ToolResult == nil {
		t.Fatalf("message 1 = %+v, want tool result", out[1])
	}
	if out[1].ToolResult.Output != "10:00" {
		t.Errorf("tool output = %q", out[1].ToolResult.Output)
	}

	if out[2].Role != model.RoleAssistant || out[2].Content != "It is 10:00." || out[2].ToolCall != nil {
		t.Errorf("message 2 = %+v, want final answer", out[2])
	}
}

func TestExpandAssistantTurnUnknownToolFeedback(t *testing.T) {
	msg := &Message{Role: RoleAssistant, Content: "Done anyway.", Status: StatusCompleted}
	events := []*trace.Event{
		trace.NewToolCall("c1", "imagine", nil),
		trace.NewError("Error: Tool 'imagine' not found.", true),
		trace.NewAnswer("Done anyway."),
	}

	out := expandAssistantTurn(msg, events)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	if out[1].Role != model.RoleTool || out[1].ToolResult.Output != "Error: Tool 'imagine' not found." {
		t.Errorf("feedback message = %+v", out[1])
	}
}

func TestLoadHistorySkipsIncompleteTurns(t *testing.T) {
	q := newMockQuerier()
	store := newTestStore(q)
	ctx := context.Background()

	c, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	// Completed first turn.
	_, a1, err := store.BeginTurn(ctx, c.ID, "capital of France?")
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	answer := trace.NewAnswer("Paris.")
	answer.Seq = 1
	if err := store.AppendTraceEvent(ctx, a1.ID, answer); err != nil {
		t.Fatalf("AppendTraceEvent() error = %v", err)
	}
	if err := store.FinalizeAssistantMessage(ctx, a1.ID, "Paris.", StatusCompleted); err != nil {
		t.Fatalf("FinalizeAssistantMessage() error = %v", err)
	}

	// Second turn still streaming: placeholder must not leak into history.
	if _, _, err := store.BeginTurn(ctx, c.ID, "and Germany?"); err != nil {
		t.Fatalf("second BeginTurn() error = %v", err)
	}

	history, err := store.LoadHistory(ctx, c.ID)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}

	wantRoles := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser}
	if len(history) != len(wantRoles) {
		t.Fatalf("history length = %d, want %d (%+v)", len(history), len(wantRoles), history)
	}
	for i, want := range wantRoles {
		if history[i].Role != want {
			t.Errorf("history[%d].Role = %s, want %s", i, history[i].Role, want)
		}
	}
	if history[1].Content != "Paris." {
		t.Errorf("assistant content = %q", history[1].Content)
	}
}
