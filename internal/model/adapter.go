// Package model isolates the language model behind a single-step adapter.
// The orchestrator owns the reasoning loop; an Adapter only answers the
// question "given this conversation so far, what happens next": one more
// tool request or a final answer.
package model

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult carries the outcome of an executed tool call back to the
// model. Output is pre-serialized text; failed invocations put the error
// description here so the model can react to it.
type ToolResult struct {
	CallID string
	Name   string
	Output string
}

// Message is one entry of the conversation the adapter sees. Assistant
// messages may carry a ToolCall; tool messages carry a ToolResult.
type Message struct {
	Role       Role
	Content    string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// StepResult is the adapter's verdict for one reasoning step. Exactly one
// of Call and Answer is meaningful: a non-nil Call means the model wants a
// tool executed, a nil Call means Answer is the final answer. Thought is
// the reasoning text accompanying either, possibly empty.
type StepResult struct {
	Thought string
	Call    *ToolCall
	Answer  string
}

// Adapter performs one model inference step. Implementations must be safe
// for concurrent use; the orchestrator calls Step from many turns at once.
type Adapter interface {
	Step(ctx context.Context, messages []Message) (*StepResult, error)
}

// AdapterError wraps a model call failure with a transience classification.
// Transient failures (rate limits, 5xx, network flaps) are retried;
// everything else fails the turn immediately.
type AdapterError struct {
	Transient bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e.Transient {
		return "transient model failure: " + e.Err.Error()
	}
	return "model failure: " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// UserMessage builds a plain user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message with optional tool call.
func AssistantMessage(thought string, call *ToolCall) Message {
	return Message{Role: RoleAssistant, Content: thought, ToolCall: call}
}

// ToolMessage builds a tool result message.
func ToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, ToolResult: &result}
}
