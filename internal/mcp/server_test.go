package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/tool"
)

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()

	registry := tool.NewRegistry(log.NewNop())
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"text": {Type: "string"},
		},
		Required: []string{"text"},
	}
	err := registry.Register(&tool.Tool{
		Name:        "echo",
		Description: "Echo input",
		Schema:      schema,
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return registry
}

func TestNewServer(t *testing.T) {
	registry := newTestRegistry(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Name: "candor", Version: "test", Registry: registry}, false},
		{"missing name", Config{Version: "test", Registry: registry}, true},
		{"missing version", Config{Name: "candor", Registry: registry}, true},
		{"missing registry", Config{Name: "candor", Version: "test"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToolResultSuccess(t *testing.T) {
	s, err := NewServer(Config{Name: "candor", Version: "test", Registry: newTestRegistry(t)})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	result, err := s.toolResult("echo", map[string]any{"value": 42}, nil)
	if err != nil {
		t.Fatalf("toolResult() error = %v", err)
	}
	if result.IsError {
		t.Error("success result must not be an error")
	}
	if len(result.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(result.Content))
	}
}

func TestToolResultRecoverableFailure(t *testing.T) {
	s, err := NewServer(Config{Name: "candor", Version: "test", Registry: newTestRegistry(t)})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	failure := &tool.Failure{Message: "query must not be empty", Recoverable: true}
	result, err := s.toolResult("echo", nil, failure)
	if err != nil {
		t.Fatalf("toolResult() error = %v", err)
	}
	if !result.IsError {
		t.Error("recoverable failure must map to an error result")
	}
}

func TestToolResultUnrecoverableFailure(t *testing.T) {
	s, err := NewServer(Config{Name: "candor", Version: "test", Registry: newTestRegistry(t)})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	failure := &tool.Failure{Message: "backend unreachable", Recoverable: false}
	if _, err := s.toolResult("echo", nil, failure); err == nil {
		t.Error("unrecoverable failure must surface as a protocol error")
	} else if !strings.Contains(err.Error(), "backend unreachable") {
		t.Errorf("error = %v, want backend message", err)
	}
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantLen int
	}{
		{"object", `{"text": "hi", "n": 3}`, false, 2},
		{"empty payload", ``, false, 0},
		{"null", `null`, false, 0},
		{"not an object", `[1, 2]`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := decodeArguments(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeArguments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if args == nil {
				t.Fatal("args must never be nil")
			}
			if len(args) != tt.wantLen {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantLen)
			}
		})
	}
}
