package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/trace"
)

// LoadHistory rebuilds the model feedback history for a conversation from
// its persisted messages and traces. User messages map directly; completed
// assistant messages are expanded back into the tool-call exchange the
// model produced them with, so the model sees its own past reasoning the
// way it originally happened. Streaming and failed assistant messages are
// skipped.
func (s *Store) LoadHistory(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	messages, err := s.GetMessages(ctx, conversationID, defaultHistoryLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var history []model.Message
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			history = append(history, model.UserMessage(msg.Content))
		case RoleAssistant:
			if msg.Status != StatusCompleted {
				continue
			}
			events, err := s.GetTraceEvents(ctx, msg.ID)
			if err != nil {
				return nil, fmt.Errorf("load trace for message %s: %w", msg.ID, err)
			}
			history = append(history, expandAssistantTurn(msg, events)...)
		}
	}
	return history, nil
}

// expandAssistantTurn converts one assistant message plus its trace back
// into the message sequence the model emitted: for each tool call an
// assistant message carrying the call and a tool message carrying the
// result, then the final answer as a plain assistant message.
func expandAssistantTurn(msg *Message, events []*trace.Event) []model.Message {
	var (
		out            []model.Message
		pendingThought string
		pendingCall    *model.ToolCall
	)

	resolve := func(output string) {
		if pendingCall == nil {
			return
		}
		out = append(out, model.ToolMessage(model.ToolResult{
			CallID: pendingCall.ID,
			Name:   pendingCall.Name,
			Output: output,
		}))
		pendingCall = nil
	}

	for _, ev := range events {
		switch ev.Type {
		case trace.EventThought:
			pendingThought = ev.Content
		case trace.EventToolCall:
			call := &model.ToolCall{ID: ev.ToolCallID, Name: ev.ToolName, Args: ev.ToolArgs}
			out = append(out, model.AssistantMessage(pendingThought, call))
			pendingThought = ""
			pendingCall = call
		case trace.EventToolResult:
			resolve(ev.Content)
		case trace.EventError:
			// A recoverable error while a call is pending was that
			// call's feedback (unknown tool, for example).
			if pendingCall != nil {
				resolve(ev.Content)
			}
		}
	}

	out = append(out, model.AssistantMessage(msg.Content, nil))
	return out
}
