package trace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/log"
)

// Appender is the durable side of the sink: it stores one event for the
// owning assistant message, preserving Seq order. Implemented by the
// conversation store; defined here because the sink is the consumer.
type Appender interface {
	AppendTraceEvent(ctx context.Context, messageID uuid.UUID, ev *Event) error
}

// Subscriber is the live side of the sink: typically the NDJSON response
// stream. A Send error marks the subscriber as gone; the sink keeps
// persisting and never retries delivery.
type Subscriber interface {
	Send(ctx context.Context, ev *Event) error
}

// Sink multiplexes one turn's event sequence to durable storage and to an
// optional live subscriber, guaranteeing the two views never diverge in
// content or order. It is bound to a single assistant message and is not
// safe for concurrent use — one turn owns one sink.
type Sink struct {
	store     Appender
	sub       Subscriber
	messageID uuid.UUID
	logger    log.Logger

	seq          int
	events       []*Event
	disconnected bool
	persistErr   error
}

// NewSink creates a sink for the given assistant message. sub may be nil
// (no live consumer, e.g. replays); store must not be.
func NewSink(store Appender, sub Subscriber, messageID uuid.UUID, logger log.Logger) *Sink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sink{store: store, sub: sub, messageID: messageID, logger: logger}
}

// Emit assigns the next sequence number and delivers the event to both
// destinations. Persistence failures are remembered and surfaced by Finish;
// subscriber failures silence forwarding for the rest of the turn. Both
// sub-operations are attempted for every event.
func (s *Sink) Emit(ctx context.Context, ev *Event) {
	s.seq++
	ev.Seq = s.seq
	s.events = append(s.events, ev)

	if err := s.store.AppendTraceEvent(ctx, s.messageID, ev); err != nil {
		// First failure wins; later ones are still logged.
		if s.persistErr == nil {
			s.persistErr = err
		}
		s.logger.Error("trace event persistence failed",
			"message_id", s.messageID,
			"seq", ev.Seq,
			"type", ev.Type,
			"error", err)
	}

	s.forward(ctx, ev)
}

// Finish completes the sink's work for the turn. If any persistence write
// failed, a trailing recoverable error event is emitted so the degradation
// is visible in both views instead of vanishing silently.
func (s *Sink) Finish(ctx context.Context) {
	if s.persistErr == nil {
		return
	}

	warning := NewError(fmt.Sprintf("trace persistence degraded: %v", s.persistErr), true)
	s.seq++
	warning.Seq = s.seq
	s.events = append(s.events, warning)

	if err := s.store.AppendTraceEvent(ctx, s.messageID, warning); err != nil {
		s.logger.Error("failed to persist trailing persistence warning",
			"message_id", s.messageID, "error", err)
	}
	s.forward(ctx, warning)
}

// forward sends to the live subscriber unless it is absent or already gone.
func (s *Sink) forward(ctx context.Context, ev *Event) {
	if s.sub == nil || s.disconnected {
		return
	}
	if err := s.sub.Send(ctx, ev); err != nil {
		// Client disconnect: the turn keeps running and keeps being
		// recorded; only forwarding stops.
		s.disconnected = true
		s.logger.Info("stream subscriber gone, continuing without forwarding",
			"message_id", s.messageID, "error", err)
	}
}

// Events returns the events emitted so far, in order. The slice is the
// sink's own bookkeeping; callers must not mutate it.
func (s *Sink) Events() []*Event {
	return s.events
}

// PersistenceFailed reports whether any durable write failed this turn.
func (s *Sink) PersistenceFailed() bool {
	return s.persistErr != nil
}
