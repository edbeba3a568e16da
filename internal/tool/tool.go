// Package tool defines the tool registry: the catalog of actions the agent
// may take during a turn. Tools are registered once at startup and invoked
// by name with schema-validated arguments.
package tool

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes one tool invocation. Arguments arrive already validated
// against the tool's schema. The returned output is serialized into the
// tool_result event; structured outputs (maps, slices) are also scanned for
// citations.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool couples a tool's self-description (what the model sees) with its
// executable handler. Schema describes the arguments object; it is resolved
// at registration so invocation never pays resolution cost.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler

	resolved *jsonschema.Resolved
}

// Failure is an error a handler returns when it wants to control how the
// failure is classified. Handlers that return ordinary errors get the
// default classification (recoverable).
type Failure struct {
	Message     string
	Recoverable bool
}

func (f *Failure) Error() string { return f.Message }

// ValidationError reports arguments that do not satisfy the tool's schema.
// Always recoverable: the message is fed back so the model can correct the
// call.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
