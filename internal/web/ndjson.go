package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/candor0/candor/internal/trace"
)

// ndjsonStream writes trace events to the response as newline-delimited
// JSON, flushing after every event so clients see the reasoning live.
//
// The request context is checked on every send: a client disconnect makes
// Send fail, which the sink treats as "subscriber gone" while the turn
// keeps running on its own context.
type ndjsonStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	reqCtx  context.Context
}

func newNDJSONStream(w http.ResponseWriter, reqCtx context.Context) (*ndjsonStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &ndjsonStream{w: w, flusher: flusher, reqCtx: reqCtx}, nil
}

// Send implements the sink's Subscriber interface.
func (s *ndjsonStream) Send(_ context.Context, ev *trace.Event) error {
	if err := s.reqCtx.Err(); err != nil {
		return fmt.Errorf("client gone: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
