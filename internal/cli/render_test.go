package cli

import (
	"strings"
	"testing"

	"github.com/candor0/candor/internal/trace"
)

func TestRenderIntermediateEvents(t *testing.T) {
	r := NewRenderer(80)

	tests := []struct {
		name string
		ev   *trace.Event
		want string
	}{
		{"thought", trace.NewThought("considering options"), "considering options"},
		{"tool call", trace.NewToolCall("c1", "current_time", map[string]any{"timezone": "UTC"}), "current_time"},
		{"tool success", trace.NewToolResult("c1", "current_time", "{}", true), "ok"},
		{"tool failure", trace.NewToolResult("c1", "fetch_page", "timeout", false), "failed"},
		{"error", trace.NewError("model step failed", false), "model step failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Render(tt.ev)
			if !strings.Contains(out, tt.want) {
				t.Errorf("Render() = %q, want substring %q", out, tt.want)
			}
		})
	}
}

func TestRenderCitationsWithPageRange(t *testing.T) {
	r := NewRenderer(80)
	start, end := 3, 5
	ev := trace.NewCitations([]trace.Citation{
		{Title: "Design Doc", URL: "https://example.com/doc", PageStart: &start, PageEnd: &end},
	})

	out := r.Render(ev)
	if !strings.Contains(out, "Design Doc") {
		t.Errorf("Render() = %q, missing title", out)
	}
	if !strings.Contains(out, "pp. 3–5") {
		t.Errorf("Render() = %q, missing en-dash page range", out)
	}
}

func TestRenderAnswerFallsBackToPlainText(t *testing.T) {
	r := &Renderer{} // no glamour renderer
	out := r.Render(trace.NewAnswer("plain **bold**"))
	if out != "plain **bold**\n" {
		t.Errorf("Render() = %q", out)
	}
}

func TestCompactArgsTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	out := compactArgs(map[string]any{"payload": long})
	if len(out) > 130 {
		t.Errorf("compactArgs() length = %d, want truncated", len(out))
	}
	if !strings.HasSuffix(out, "…") {
		t.Errorf("compactArgs() = %q, want ellipsis suffix", out)
	}
}
