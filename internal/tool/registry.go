package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/candor0/candor/internal/log"
)

var (
	// ErrDuplicateTool is returned by Register when the name is taken.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrUnknownTool is returned when a name resolves to nothing. The
	// orchestrator feeds this back to the model rather than failing the
	// turn.
	ErrUnknownTool = errors.New("unknown tool")
)

// Registry is the catalog of tools available to the agent. Registration
// happens during startup; lookup and invocation happen on every turn, so
// reads take the shared lock.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	order  []string
	logger log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{tools: make(map[string]*Tool), logger: logger}
}

// Register adds a tool to the catalog. The schema is resolved eagerly so a
// malformed schema fails at startup, not mid-turn. Names are first come,
// first served.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return errors.New("tool must have a name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	if t.Schema != nil {
		resolved, err := t.Schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("resolve schema for tool %q: %w", t.Name, err)
		}
		t.resolved = resolved
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	r.logger.Debug("tool registered", "name", t.Name)
	return nil
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// List returns the registered tools in registration order. The model sees
// tool descriptions in this order, so it is deterministic.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke resolves, validates and executes a tool call. Validation failures
// return a *ValidationError before the handler runs. A panicking handler is
// converted into a recoverable *Failure so one misbehaving tool cannot take
// down the turn.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (output any, err error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	if t.resolved != nil {
		if args == nil {
			args = map[string]any{}
		}
		if verr := t.resolved.Validate(args); verr != nil {
			return nil, &ValidationError{Tool: name, Err: verr}
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", rec)
			output = nil
			err = &Failure{
				Message:     fmt.Sprintf("tool %q panicked: %v", name, rec),
				Recoverable: true,
			}
		}
	}()

	return t.Handler(ctx, args)
}
