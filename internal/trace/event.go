// Package trace defines the agent reasoning trace: the closed set of event
// kinds emitted during a turn, the envelope used both on the wire and in the
// database, and the sink that multiplexes events to storage and to a live
// subscriber.
package trace

import (
	"fmt"
	"time"
)

// EventType discriminates trace event variants. The values double as the
// wire-format "type" field, so they are stable and must not be renamed.
type EventType string

const (
	// EventThought is intermediate reasoning text from the model.
	EventThought EventType = "thought"

	// EventToolCall records the model requesting a tool invocation.
	EventToolCall EventType = "tool_call"

	// EventToolResult records the outcome of a tool invocation,
	// successful or not (Success distinguishes the two).
	EventToolResult EventType = "tool_result"

	// EventCitations carries source citations extracted from a tool
	// result, emitted adjacent to the event that produced them.
	EventCitations EventType = "citations"

	// EventError records a failure. Recoverable errors are fed back to
	// the model as context; unrecoverable ones terminate the turn.
	EventError EventType = "error"

	// EventAnswer is the final answer. Exactly one per completed turn,
	// always the last event of the sequence.
	EventAnswer EventType = "answer"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventThought, EventToolCall, EventToolResult, EventCitations, EventError, EventAnswer:
		return true
	}
	return false
}

// Event is one atomic step of agent reasoning or action. The envelope is
// flat with optional fields by variant: one struct serves the NDJSON wire
// format, the persisted trace row, and in-process plumbing.
//
// Seq is assigned by the Sink in emission order; events created by the
// orchestrator carry Seq == 0 until they pass through the sink.
type Event struct {
	Type       EventType      `json:"type"`
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`

	// Success is set on tool_result events only.
	Success *bool `json:"success,omitempty"`

	// Recoverable is set on error events only.
	Recoverable *bool `json:"recoverable,omitempty"`

	// Citations is set on citations events only.
	Citations []Citation `json:"citations,omitempty"`

	Seq       int       `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewThought creates a thought event.
func NewThought(text string) *Event {
	return &Event{Type: EventThought, Content: text, Timestamp: time.Now().UTC()}
}

// NewToolCall creates a tool_call event for the named tool.
func NewToolCall(callID, name string, args map[string]any) *Event {
	return &Event{
		Type:       EventToolCall,
		Content:    fmt.Sprintf("Calling %s", name),
		ToolName:   name,
		ToolArgs:   args,
		ToolCallID: callID,
		Timestamp:  time.Now().UTC(),
	}
}

// NewToolResult creates a tool_result event. For failed invocations the
// output is the error description and success is false.
func NewToolResult(callID, name, output string, success bool) *Event {
	return &Event{
		Type:       EventToolResult,
		Content:    output,
		ToolName:   name,
		ToolCallID: callID,
		Success:    &success,
		Timestamp:  time.Now().UTC(),
	}
}

// NewCitations creates a citations event.
func NewCitations(entries []Citation) *Event {
	return &Event{Type: EventCitations, Content: "Citations generated.", Citations: entries, Timestamp: time.Now().UTC()}
}

// NewError creates an error event.
func NewError(msg string, recoverable bool) *Event {
	return &Event{Type: EventError, Content: msg, Recoverable: &recoverable, Timestamp: time.Now().UTC()}
}

// NewAnswer creates the terminal answer event.
func NewAnswer(text string) *Event {
	return &Event{Type: EventAnswer, Content: text, Timestamp: time.Now().UTC()}
}

// IsTerminalAnswer reports whether the event ends a successful turn.
func (e *Event) IsTerminalAnswer() bool {
	return e.Type == EventAnswer
}

// ValidateSequence checks the ordering invariants of a completed turn's
// event sequence: at most one answer and only in final position, and every
// tool_call resolved (by a tool_result or error) before the next tool_call.
// Used by tests and by the conversation store's read-back verification.
func ValidateSequence(events []*Event) error {
	pendingTool := ""
	for i, ev := range events {
		if !ev.Type.Valid() {
			return fmt.Errorf("event %d: unknown type %q", i, ev.Type)
		}
		switch ev.Type {
		case EventAnswer:
			if i != len(events)-1 {
				return fmt.Errorf("event %d: answer before end of sequence", i)
			}
		case EventToolCall:
			if pendingTool != "" {
				return fmt.Errorf("event %d: tool_call %q while %q unresolved", i, ev.ToolName, pendingTool)
			}
			pendingTool = ev.ToolName
		case EventToolResult, EventError:
			pendingTool = ""
		}
	}
	return nil
}
