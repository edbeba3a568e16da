package agent

import (
	"context"

	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/trace"
)

// Observer inspects a turn as it progresses. Both hooks may return an
// event to inject into the trace, or nil to stay silent. Observer failures
// must not break the turn, so hooks return events, not errors.
type Observer interface {
	// StepStarted runs before each model step. step counts from 1.
	StepStarted(ctx context.Context, step int) *trace.Event

	// ToolCompleted runs after each tool invocation, successful or not.
	ToolCompleted(ctx context.Context, call *model.ToolCall, output any, err error) *trace.Event
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil
// fields are skipped.
type ObserverFuncs struct {
	OnStepStarted   func(ctx context.Context, step int) *trace.Event
	OnToolCompleted func(ctx context.Context, call *model.ToolCall, output any, err error) *trace.Event
}

func (o ObserverFuncs) StepStarted(ctx context.Context, step int) *trace.Event {
	if o.OnStepStarted == nil {
		return nil
	}
	return o.OnStepStarted(ctx, step)
}

func (o ObserverFuncs) ToolCompleted(ctx context.Context, call *model.ToolCall, output any, err error) *trace.Event {
	if o.OnToolCompleted == nil {
		return nil
	}
	return o.OnToolCompleted(ctx, call, output, err)
}
