// Package agent implements the turn orchestrator: the loop that alternates
// model reasoning steps with tool executions until the model produces a
// final answer. The loop is hand-rolled rather than delegated to the model
// framework so every intermediate step is observable, traceable and
// persisted.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/tool"
	"github.com/candor0/candor/internal/trace"
)

// State is the orchestrator's position in the turn lifecycle.
type State string

const (
	// StateReasoning means the model is producing the next step.
	StateReasoning State = "reasoning"

	// StateAwaitingToolResult means a requested tool is executing.
	StateAwaitingToolResult State = "awaiting_tool_result"

	// StateDone means the turn completed with a final answer.
	StateDone State = "done"

	// StateFailed means an unrecoverable error ended the turn.
	StateFailed State = "failed"

	// StateAborted means cancellation ended the turn.
	StateAborted State = "aborted"
)

var (
	// ErrStepLimitExceeded terminates a turn whose model never converged
	// on an answer within the step budget.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrModelFailure marks a turn that died because the model adapter
	// failed after its retry budget.
	ErrModelFailure = errors.New("model adapter failure")

	// ErrToolFailure marks a turn ended by a tool declaring its failure
	// unrecoverable.
	ErrToolFailure = errors.New("unrecoverable tool failure")
)

// fallbackAnswer is returned when the model produces an empty final
// response.
const fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// EventSink receives the events the orchestrator emits, in order.
// Satisfied by *trace.Sink.
type EventSink interface {
	Emit(ctx context.Context, ev *trace.Event)
}

// TurnResult summarizes a completed turn.
type TurnResult struct {
	Answer string
	State  State
	Steps  int
}

// Config contains all required parameters for the Orchestrator.
type Config struct {
	Adapter  model.Adapter
	Registry *tool.Registry
	Logger   log.Logger

	// MaxSteps bounds the number of model steps per turn (zero uses the
	// default of 10).
	MaxSteps int

	// ToolTimeout bounds one tool invocation (zero uses 30s).
	ToolTimeout time.Duration

	// Observers contribute extra trace events at step and tool
	// boundaries. Optional.
	Observers []Observer
}

func (cfg Config) validate() error {
	if cfg.Adapter == nil {
		return errors.New("model adapter is required")
	}
	if cfg.Registry == nil {
		return errors.New("tool registry is required")
	}
	return nil
}

// Orchestrator drives the reasoning loop. It is stateless across turns and
// safe for concurrent use; all per-turn state lives on the stack of
// RunTurn.
type Orchestrator struct {
	adapter     model.Adapter
	registry    *tool.Registry
	maxSteps    int
	toolTimeout time.Duration
	observers   []Observer
	logger      log.Logger
	tracer      oteltrace.Tracer
}

// New creates an Orchestrator with required configuration.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Orchestrator{
		adapter:     cfg.Adapter,
		registry:    cfg.Registry,
		maxSteps:    maxSteps,
		toolTimeout: toolTimeout,
		observers:   cfg.Observers,
		logger:      logger,
		tracer:      otel.Tracer("candor/agent"),
	}, nil
}

// RunTurn executes one user turn: history plus the new input go to the
// model, tool requests are dispatched through the registry with their
// results fed back, and the loop ends at a final answer, an unrecoverable
// failure, cancellation, or the step limit. Every intermediate step is
// emitted through sink before the method returns.
//
// The returned TurnResult is non-nil even on error, so callers can report
// the terminal state.
func (o *Orchestrator) RunTurn(ctx context.Context, history []model.Message, input string, sink EventSink) (*TurnResult, error) {
	ctx, span := o.tracer.Start(ctx, "agent.turn")
	defer span.End()

	messages := make([]model.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, model.UserMessage(input))

	result := &TurnResult{State: StateReasoning}

	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return o.abort(ctx, sink, result, err)
		}
		if step > o.maxSteps {
			msg := fmt.Sprintf("step limit of %d exceeded without a final answer", o.maxSteps)
			sink.Emit(ctx, trace.NewError(msg, false))
			result.State = StateFailed
			span.SetAttributes(attribute.String("turn.state", string(result.State)))
			return result, fmt.Errorf("%w: %d steps", ErrStepLimitExceeded, o.maxSteps)
		}
		result.Steps = step

		for _, obs := range o.observers {
			if ev := obs.StepStarted(ctx, step); ev != nil {
				sink.Emit(ctx, ev)
			}
		}

		stepResult, err := o.modelStep(ctx, step, messages)
		if err != nil {
			if ctx.Err() != nil {
				return o.abort(ctx, sink, result, ctx.Err())
			}
			sink.Emit(ctx, trace.NewError(fmt.Sprintf("model step failed: %v", err), false))
			result.State = StateFailed
			span.SetAttributes(attribute.String("turn.state", string(result.State)))
			return result, fmt.Errorf("%w: %v", ErrModelFailure, err)
		}

		if stepResult.Thought != "" {
			sink.Emit(ctx, trace.NewThought(stepResult.Thought))
		}

		if stepResult.Call == nil {
			answer := stepResult.Answer
			if strings.TrimSpace(answer) == "" {
				o.logger.Warn("model returned empty final answer, using fallback")
				answer = fallbackAnswer
			}
			sink.Emit(ctx, trace.NewAnswer(answer))
			result.Answer = answer
			result.State = StateDone
			span.SetAttributes(
				attribute.String("turn.state", string(result.State)),
				attribute.Int("turn.steps", result.Steps),
			)
			return result, nil
		}

		call := stepResult.Call
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		sink.Emit(ctx, trace.NewToolCall(call.ID, call.Name, call.Args))

		result.State = StateAwaitingToolResult
		feedback, fatal := o.dispatchTool(ctx, sink, call)
		if fatal != nil {
			if ctx.Err() != nil {
				return o.abort(ctx, sink, result, ctx.Err())
			}
			result.State = StateFailed
			span.SetAttributes(attribute.String("turn.state", string(result.State)))
			return result, fatal
		}

		messages = append(messages,
			model.AssistantMessage(stepResult.Thought, call),
			model.ToolMessage(model.ToolResult{
				CallID: call.ID,
				Name:   call.Name,
				Output: feedback,
			}),
		)
		result.State = StateReasoning
	}
}

// modelStep runs one adapter call inside its own span.
func (o *Orchestrator) modelStep(ctx context.Context, step int, messages []model.Message) (*model.StepResult, error) {
	ctx, span := o.tracer.Start(ctx, "agent.step",
		oteltrace.WithAttributes(attribute.Int("step", step)))
	defer span.End()

	return o.adapter.Step(ctx, messages)
}

// dispatchTool invokes the requested tool and emits the resulting events.
// The returned feedback string is what the model sees on the next step.
// A non-nil fatal error ends the turn.
func (o *Orchestrator) dispatchTool(ctx context.Context, sink EventSink, call *model.ToolCall) (feedback string, fatal error) {
	toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	toolCtx, span := o.tracer.Start(toolCtx, "agent.tool",
		oteltrace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	output, err := o.registry.Invoke(toolCtx, call.Name, call.Args)

	for _, obs := range o.observers {
		if ev := obs.ToolCompleted(ctx, call, output, err); ev != nil {
			sink.Emit(ctx, ev)
		}
	}

	switch {
	case err == nil:
		serialized := serializeOutput(output)
		sink.Emit(ctx, trace.NewToolResult(call.ID, call.Name, serialized, true))
		if citations := trace.ExtractCitations(output); len(citations) > 0 {
			sink.Emit(ctx, trace.NewCitations(citations))
		}
		return serialized, nil

	case errors.Is(err, tool.ErrUnknownTool):
		// The model hallucinated a tool. Feed the mistake back instead
		// of failing the turn; models routinely self-correct.
		msg := fmt.Sprintf("Error: Tool '%s' not found.", call.Name)
		sink.Emit(ctx, trace.NewError(msg, true))
		return msg, nil

	default:
		var failure *tool.Failure
		if errors.As(err, &failure) && !failure.Recoverable {
			sink.Emit(ctx, trace.NewError(failure.Message, false))
			return "", fmt.Errorf("%w: %s: %s", ErrToolFailure, call.Name, failure.Message)
		}

		o.logger.Debug("tool invocation failed, feeding error back",
			"tool", call.Name, "error", err)
		msg := fmt.Sprintf("Error: %v", err)
		sink.Emit(ctx, trace.NewToolResult(call.ID, call.Name, msg, false))
		return msg, nil
	}
}

// abort ends the turn on cancellation. The error event still goes through
// the sink so the persisted trace records how the turn ended, even though
// the live subscriber is usually already gone.
func (o *Orchestrator) abort(ctx context.Context, sink EventSink, result *TurnResult, cause error) (*TurnResult, error) {
	sink.Emit(context.WithoutCancel(ctx), trace.NewError(fmt.Sprintf("turn aborted: %v", cause), false))
	result.State = StateAborted
	return result, cause
}

// serializeOutput renders a tool output for the trace and for model
// feedback. Strings pass through; everything else becomes compact JSON.
func serializeOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
