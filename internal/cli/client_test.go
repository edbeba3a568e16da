package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/trace"
)

func TestCreateConversation(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/conversations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "` + id.String() + `", "title": ""}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	got, err := client.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if got != id {
		t.Errorf("id = %s, want %s", got, id)
	}
}

func TestSendMessageStreamsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(
			`{"type":"thought","content":"thinking","seq":1}` + "\n" +
				`{"type":"answer","content":"done","seq":2}` + "\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	var events []*trace.Event
	err := client.SendMessage(context.Background(), uuid.New(), "hi", func(ev *trace.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != trace.EventThought || events[1].Type != trace.EventAnswer {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
	if !events[1].IsTerminalAnswer() {
		t.Error("final event must be the terminal answer")
	}
}

func TestSendMessageConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": "a turn is already running on this conversation"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	err := client.SendMessage(context.Background(), uuid.New(), "hi", func(*trace.Event) error { return nil })
	if !errors.Is(err, ErrConversationBusy) {
		t.Errorf("error = %v, want ErrConversationBusy", err)
	}
}

func TestSendMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "conversation not found"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	err := client.SendMessage(context.Background(), uuid.New(), "hi", func(*trace.Event) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "conversation not found") {
		t.Errorf("error = %v, want server message", err)
	}
}
