package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/log"
)

type recordingAppender struct {
	events  []*Event
	failOn  map[int]error // seq -> error
	failAll error
}

func (a *recordingAppender) AppendTraceEvent(_ context.Context, _ uuid.UUID, ev *Event) error {
	if a.failAll != nil {
		return a.failAll
	}
	if err, ok := a.failOn[ev.Seq]; ok {
		return err
	}
	a.events = append(a.events, ev)
	return nil
}

type recordingSubscriber struct {
	events []*Event
	failOn int // fail when this many events have already been sent; 0 = never
}

func (s *recordingSubscriber) Send(_ context.Context, ev *Event) error {
	if s.failOn > 0 && len(s.events) >= s.failOn {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, ev)
	return nil
}

func TestSinkAssignsMonotonicSeq(t *testing.T) {
	store := &recordingAppender{}
	sub := &recordingSubscriber{}
	sink := NewSink(store, sub, uuid.New(), log.NewNop())
	ctx := context.Background()

	sink.Emit(ctx, NewThought("first"))
	sink.Emit(ctx, NewToolCall("c1", "t", nil))
	sink.Emit(ctx, NewAnswer("done"))
	sink.Finish(ctx)

	if len(store.events) != 3 || len(sub.events) != 3 {
		t.Fatalf("persisted %d, forwarded %d, want 3 each", len(store.events), len(sub.events))
	}
	for i, ev := range store.events {
		if ev.Seq != i+1 {
			t.Errorf("event %d has seq %d", i, ev.Seq)
		}
	}
	// Both destinations see the same ordered sequence.
	for i := range store.events {
		if store.events[i] != sub.events[i] {
			t.Errorf("event %d diverges between store and subscriber", i)
		}
	}
}

func TestSinkSubscriberDisconnect(t *testing.T) {
	store := &recordingAppender{}
	sub := &recordingSubscriber{failOn: 1}
	sink := NewSink(store, sub, uuid.New(), log.NewNop())
	ctx := context.Background()

	sink.Emit(ctx, NewThought("first"))
	sink.Emit(ctx, NewThought("second")) // send fails here
	sink.Emit(ctx, NewAnswer("done"))    // forwarding is now a no-op
	sink.Finish(ctx)

	if len(sub.events) != 1 {
		t.Errorf("subscriber got %d events, want 1 before disconnect", len(sub.events))
	}
	if len(store.events) != 3 {
		t.Errorf("persistence must continue after disconnect, got %d events", len(store.events))
	}
	if sink.PersistenceFailed() {
		t.Error("subscriber loss must not count as persistence failure")
	}
}

func TestSinkPersistenceFailureSurfacedAtFinish(t *testing.T) {
	store := &recordingAppender{failOn: map[int]error{2: errors.New("disk full")}}
	sub := &recordingSubscriber{}
	sink := NewSink(store, sub, uuid.New(), log.NewNop())
	ctx := context.Background()

	sink.Emit(ctx, NewThought("first"))
	sink.Emit(ctx, NewThought("lost"))
	sink.Emit(ctx, NewAnswer("done"))
	sink.Finish(ctx)

	if !sink.PersistenceFailed() {
		t.Fatal("expected persistence failure to be recorded")
	}

	// The subscriber still received every event plus the trailing warning.
	last := sub.events[len(sub.events)-1]
	if last.Type != EventError {
		t.Fatalf("last forwarded event = %s, want error", last.Type)
	}
	if last.Recoverable == nil || !*last.Recoverable {
		t.Error("trailing persistence warning must be recoverable")
	}
	if last.Seq != 4 {
		t.Errorf("warning seq = %d, want 4", last.Seq)
	}
}

func TestSinkNilSubscriber(t *testing.T) {
	store := &recordingAppender{}
	sink := NewSink(store, nil, uuid.New(), log.NewNop())
	ctx := context.Background()

	sink.Emit(ctx, NewThought("headless"))
	sink.Finish(ctx)

	if len(store.events) != 1 {
		t.Errorf("persisted %d events, want 1", len(store.events))
	}
}

func TestSinkEventsBookkeeping(t *testing.T) {
	store := &recordingAppender{failAll: errors.New("db down")}
	sink := NewSink(store, nil, uuid.New(), log.NewNop())
	ctx := context.Background()

	sink.Emit(ctx, NewThought("a"))
	sink.Emit(ctx, NewAnswer("b"))
	sink.Finish(ctx)

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("Events() returned %d, want 3 (two emitted plus warning)", len(events))
	}
	if events[2].Type != EventError {
		t.Errorf("third event = %s, want trailing error", events[2].Type)
	}
}
