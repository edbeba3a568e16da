// Package mcp exposes the tool registry over the Model Context Protocol,
// so external MCP clients (editors, other agents) can call the same tools
// the turn orchestrator dispatches internally.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/tool"
)

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Registry *tool.Registry
	Logger   log.Logger
}

// Server wraps the MCP SDK server around the tool registry.
type Server struct {
	mcpServer *mcp.Server
	registry  *tool.Registry
	logger    log.Logger
}

// NewServer creates an MCP server exposing every registered tool.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		registry: cfg.Registry,
		logger:   logger,
	}

	for _, t := range cfg.Registry.List() {
		s.registerTool(t)
	}
	return s, nil
}

// Run starts the MCP server on the given transport. Blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// registerTool bridges one registry tool into the MCP server. The registry
// stays the single dispatch path, so schema validation and panic recovery
// behave identically for MCP clients and for the agent loop.
func (s *Server) registerTool(t *tool.Tool) {
	def := &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema,
	}

	s.mcpServer.AddTool(def, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		output, err := s.registry.Invoke(ctx, t.Name, args)
		return s.toolResult(t.Name, output, err)
	})

	s.logger.Debug("registered MCP tool", "tool", t.Name)
}

// toolResult maps a registry invocation outcome to an MCP response.
// Recoverable failures and validation errors become error results the
// client model can read; anything else is a protocol-level error.
func (s *Server) toolResult(name string, output any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		var failure *tool.Failure
		if errors.As(err, &failure) {
			if !failure.Recoverable {
				return nil, fmt.Errorf("tool %s: %s", name, failure.Message)
			}
			return errorResult(failure.Message), nil
		}
		var invalid *tool.ValidationError
		if errors.As(err, &invalid) {
			return errorResult(err.Error()), nil
		}
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	text, err := serializeOutput(output)
	if err != nil {
		return nil, fmt.Errorf("tool %s: serialize output: %w", name, err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func serializeOutput(output any) (string, error) {
	switch v := output.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
