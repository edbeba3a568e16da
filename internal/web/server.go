// Package web provides the HTTP API: conversation CRUD and the streaming
// message endpoint that runs agent turns.
package web

import (
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/agent"
	"github.com/candor0/candor/internal/conversation"
	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/tool"
)

// Config contains configuration for creating the API server.
type Config struct {
	Store        *conversation.Store // Required
	Orchestrator *agent.Orchestrator // Required
	Adapter      model.Adapter       // Optional: nil disables AI title generation
	Registry     *tool.Registry      // Optional: nil leaves the tool listing empty
	Logger       log.Logger
}

// Server is the candor HTTP server. It also tracks which conversations
// have a turn in flight so concurrent turns on one conversation are
// rejected instead of interleaved.
type Server struct {
	mux          *http.ServeMux
	store        *conversation.Store
	orchestrator *agent.Orchestrator
	adapter      model.Adapter
	registry     *tool.Registry
	logger       log.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewServer creates a server with all routes configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mux:          http.NewServeMux(),
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		adapter:      cfg.Adapter,
		registry:     cfg.Registry,
		logger:       logger,
		inflight:     make(map[uuid.UUID]struct{}),
	}

	s.mux.HandleFunc("GET /api/healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/tools", s.handleListTools)
	s.mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	s.mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	s.mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	s.mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleSendMessage)

	return s, nil
}

// Handler returns the server's handler chain.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.logger, s.mux)
}

// acquireTurn reserves the conversation for one turn. Returns false when a
// turn is already running on it.
func (s *Server) acquireTurn(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Server) releaseTurn(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}
