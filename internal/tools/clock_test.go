package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/candor0/candor/internal/tool"
)

func TestCurrentTimeDefaultsToUTC(t *testing.T) {
	clock, err := NewCurrentTime()
	if err != nil {
		t.Fatalf("NewCurrentTime() error = %v", err)
	}

	out, err := clock.Handler(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	m := out.(map[string]any)
	if m["timezone"] != "UTC" {
		t.Errorf("timezone = %v, want UTC", m["timezone"])
	}
	if _, err := time.Parse(time.RFC3339, m["time"].(string)); err != nil {
		t.Errorf("time %v is not RFC3339: %v", m["time"], err)
	}
}

func TestCurrentTimeWithTimezone(t *testing.T) {
	clock, err := NewCurrentTime()
	if err != nil {
		t.Fatalf("NewCurrentTime() error = %v", err)
	}

	out, err := clock.Handler(context.Background(), map[string]any{"timezone": "Asia/Tokyo"})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if out.(map[string]any)["timezone"] != "Asia/Tokyo" {
		t.Errorf("timezone = %v", out.(map[string]any)["timezone"])
	}
}

func TestCurrentTimeUnknownTimezone(t *testing.T) {
	clock, err := NewCurrentTime()
	if err != nil {
		t.Fatalf("NewCurrentTime() error = %v", err)
	}

	_, err = clock.Handler(context.Background(), map[string]any{"timezone": "Mars/Olympus_Mons"})
	var failure *tool.Failure
	if !errors.As(err, &failure) || !failure.Recoverable {
		t.Errorf("handler error = %v, want recoverable Failure", err)
	}
}
