package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/candor0/candor/internal/conversation"
	"github.com/candor0/candor/internal/trace"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// toolDescriptor is one entry of the GET /api/tools payload.
type toolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descriptors := []toolDescriptor{}
	if s.registry != nil {
		for _, t := range s.registry.List() {
			descriptors = append(descriptors, toolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.Schema,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": descriptors})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	conv, err := s.store.CreateConversation(r.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		s.logger.Error("create conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	conversations, err := s.store.ListConversations(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []*conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// conversationDetail is the GET /api/conversations/{id} payload: the
// conversation, its messages, and each assistant message's trace.
type conversationDetail struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []messageDetail            `json:"messages"`
}

type messageDetail struct {
	*conversation.Message
	Trace []*trace.Event `json:"trace,omitempty"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.conversationError(w, err, "get conversation")
		return
	}

	messages, err := s.store.GetMessages(r.Context(), id, 0, 0)
	if err != nil {
		s.conversationError(w, err, "get messages")
		return
	}

	detail := conversationDetail{Conversation: conv, Messages: make([]messageDetail, 0, len(messages))}
	for _, msg := range messages {
		md := messageDetail{Message: msg}
		if msg.Role == conversation.RoleAssistant {
			events, err := s.store.GetTraceEvents(r.Context(), msg.ID)
			if err != nil {
				s.conversationError(w, err, "get trace events")
				return
			}
			md.Trace = events
		}
		detail.Messages = append(detail.Messages, md)
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		s.conversationError(w, err, "delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage runs one agent turn and streams its trace events as
// NDJSON. The turn itself runs on a context detached from the request, so
// a client disconnect stops forwarding but not the turn; the stream ending
// without an answer event is the client's failure signal.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "message content is required")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.conversationError(w, err, "get conversation")
		return
	}

	if !s.acquireTurn(id) {
		writeError(w, http.StatusConflict, "a turn is already running on this conversation")
		return
	}
	defer s.releaseTurn(id)

	history, err := s.store.LoadHistory(r.Context(), id)
	if err != nil {
		s.logger.Error("load history", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation history")
		return
	}

	_, assistantMsg, err := s.store.BeginTurn(r.Context(), id, content)
	if err != nil {
		s.logger.Error("begin turn", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start turn")
		return
	}

	if conv.Title == "" {
		s.generateTitleAsync(r.Context(), id, content)
	}

	stream, err := newNDJSONStream(w, r.Context())
	if err != nil {
		s.logger.Error("open stream", "error", err)
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sink := trace.NewSink(s.store, stream, assistantMsg.ID, s.logger)

	// Detached from the request so a disconnect cannot kill the turn
	// mid-flight; the sink notices the dead subscriber on its own.
	turnCtx := context.WithoutCancel(r.Context())

	result, turnErr := s.orchestrator.RunTurn(turnCtx, history, content, sink)
	sink.Finish(turnCtx)

	status := conversation.StatusCompleted
	answer := result.Answer
	if turnErr != nil {
		s.logger.Warn("turn ended in failure",
			"conversation_id", id,
			"message_id", assistantMsg.ID,
			"state", result.State,
			"error", turnErr)
		status = conversation.StatusFailed
	}
	if err := s.store.FinalizeAssistantMessage(turnCtx, assistantMsg.ID, answer, status); err != nil {
		s.logger.Error("finalize assistant message",
			"message_id", assistantMsg.ID, "error", err)
	}
}

// conversationError maps store errors to HTTP status codes.
func (s *Server) conversationError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// pathID extracts and validates the {id} path segment. On failure it writes
// the error response and returns ok=false.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return uuid.Nil, false
	}
	return id, true
}

func paginationParams(r *http.Request) (limit, offset int32) {
	q := r.URL.Query()
	if n, err := strconv.ParseInt(q.Get("limit"), 10, 32); err == nil && n > 0 {
		limit = int32(n)
	}
	if n, err := strconv.ParseInt(q.Get("offset"), 10, 32); err == nil && n > 0 {
		offset = int32(n)
	}
	return limit, offset
}
