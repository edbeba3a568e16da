package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/time/rate"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/tool"
)

// defaultStepTimeout bounds a single model inference call.
const defaultStepTimeout = 60 * time.Second

// GenkitConfig contains all required parameters for the Genkit adapter.
type GenkitConfig struct {
	Genkit       *genkit.Genkit
	ModelName    string
	SystemPrompt string
	Registry     *tool.Registry
	Logger       log.Logger

	// StepTimeout bounds one inference call (zero uses the default).
	StepTimeout time.Duration

	// RateLimiter throttles outgoing model calls (nil = default limiter).
	RateLimiter *rate.Limiter
}

func (cfg GenkitConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Registry == nil {
		return errors.New("tool registry is required")
	}
	return nil
}

// GenkitAdapter implements Adapter on top of Genkit. Tool requests are
// returned to the caller instead of being auto-executed, which keeps the
// reasoning loop in the orchestrator where it is observable and traceable.
//
// All configuration is captured immutably at construction time so the
// adapter is safe for concurrent turns.
type GenkitAdapter struct {
	g            *genkit.Genkit
	modelName    string
	systemPrompt string
	toolRefs     []ai.ToolRef
	stepTimeout  time.Duration
	limiter      *rate.Limiter
	logger       log.Logger
}

// NewGenkitAdapter creates the adapter and mirrors every registry tool into
// Genkit so the model sees its name, description and argument schema. The
// Genkit-side handlers never run: generation uses WithReturnToolRequests,
// so execution stays with the tool registry.
func NewGenkitAdapter(cfg GenkitConfig) (*GenkitAdapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	// Default: 10 requests/sec sustained, burst of 30.
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	tools := cfg.Registry.List()
	toolRefs := make([]ai.ToolRef, 0, len(tools))
	for _, t := range tools {
		schema, err := bridgeSchema(t.Schema)
		if err != nil {
			return nil, fmt.Errorf("bridge schema for tool %q: %w", t.Name, err)
		}
		name := t.Name
		def := genkit.DefineToolWithInputSchema(cfg.Genkit, name, t.Description, schema,
			func(_ *ai.ToolContext, _ any) (any, error) {
				return nil, fmt.Errorf("tool %q must be executed by the registry", name)
			})
		toolRefs = append(toolRefs, def)
	}

	logger.Info("model adapter initialized",
		"model", cfg.ModelName,
		"tools", len(toolRefs))

	return &GenkitAdapter{
		g:            cfg.Genkit,
		modelName:    cfg.ModelName,
		systemPrompt: cfg.SystemPrompt,
		toolRefs:     toolRefs,
		stepTimeout:  stepTimeout,
		limiter:      limiter,
		logger:       logger,
	}, nil
}

// Step performs one inference call and interprets the response as either a
// tool request or a final answer. When the model asks for several tools at
// once only the first request is surfaced; the rest are regenerated on the
// next step with the first result in context.
func (a *GenkitAdapter) Step(ctx context.Context, messages []Message) (*StepResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, &AdapterError{Transient: false, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, a.stepTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithMessages(toGenkitMessages(messages)...),
		ai.WithReturnToolRequests(true),
	}
	if a.systemPrompt != "" {
		opts = append(opts, ai.WithSystem(a.systemPrompt))
	}
	if len(a.toolRefs) > 0 {
		opts = append(opts, ai.WithTools(a.toolRefs...))
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		return nil, &AdapterError{Transient: retryableError(err), Err: err}
	}

	requests := resp.ToolRequests()
	if len(requests) > 0 {
		if len(requests) > 1 {
			a.logger.Debug("model requested multiple tools, dispatching first only",
				"requested", len(requests),
				"chosen", requests[0].Name)
		}
		req := requests[0]
		return &StepResult{
			Thought: resp.Text(),
			Call: &ToolCall{
				ID:   req.Ref,
				Name: req.Name,
				Args: argsToMap(req.Input),
			},
		}, nil
	}

	return &StepResult{Answer: resp.Text()}, nil
}

// toGenkitMessages converts adapter messages into Genkit's message shape.
func toGenkitMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case RoleAssistant:
			parts := []*ai.Part{}
			if m.Content != "" {
				parts = append(parts, ai.NewTextPart(m.Content))
			}
			if m.ToolCall != nil {
				parts = append(parts, ai.NewToolRequestPart(&ai.ToolRequest{
					Ref:   m.ToolCall.ID,
					Name:  m.ToolCall.Name,
					Input: m.ToolCall.Args,
				}))
			}
			if len(parts) == 0 {
				parts = append(parts, ai.NewTextPart(""))
			}
			out = append(out, ai.NewModelMessage(parts...))
		case RoleTool:
			if m.ToolResult == nil {
				continue
			}
			out = append(out, &ai.Message{
				Role: ai.RoleTool,
				Content: []*ai.Part{ai.NewToolResponsePart(&ai.ToolResponse{
					Ref:    m.ToolResult.CallID,
					Name:   m.ToolResult.Name,
					Output: m.ToolResult.Output,
				})},
			})
		case RoleSystem:
			// System text travels via WithSystem, not the history.
			continue
		}
	}
	return out
}

// argsToMap normalizes a tool request input into the registry's argument
// shape. Genkit decodes JSON inputs as map[string]any already; anything
// else goes through a JSON round trip.
func argsToMap(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		return m
	}
}

// bridgeSchema converts the registry's schema representation into the
// map form DefineToolWithInputSchema consumes. Both sides are JSON
// Schema, so the bridge is a serialization round trip.
func bridgeSchema(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
