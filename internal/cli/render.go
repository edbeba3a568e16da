package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/candor0/candor/internal/trace"
)

// Renderer turns trace events into styled terminal output. Intermediate
// events (thoughts, tool activity) render as dim one-liners; the final
// answer renders as markdown via glamour.
type Renderer struct {
	thought  lipgloss.Style
	tool     lipgloss.Style
	errStyle lipgloss.Style
	cite     lipgloss.Style
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer for the given terminal width. Markdown
// rendering degrades to plain text when glamour cannot initialize (e.g. no
// TTY).
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}

	r := &Renderer{
		thought:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		tool:     lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		errStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		cite:     lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.markdown = md
	}
	return r
}

// Render returns the terminal representation of one event. An empty string
// means the event produces no output.
func (r *Renderer) Render(ev *trace.Event) string {
	switch ev.Type {
	case trace.EventThought:
		return r.thought.Render("· "+ev.Content) + "\n"

	case trace.EventToolCall:
		return r.tool.Render(fmt.Sprintf("⚙ %s %s", ev.ToolName, compactArgs(ev.ToolArgs))) + "\n"

	case trace.EventToolResult:
		status := "ok"
		if ev.Success != nil && !*ev.Success {
			status = "failed"
		}
		return r.tool.Render(fmt.Sprintf("⚙ %s → %s", ev.ToolName, status)) + "\n"

	case trace.EventCitations:
		var b strings.Builder
		for _, c := range ev.Citations {
			line := "» " + c.Title
			if pr := c.PageRange(); pr != "" {
				line += ", " + pr
			}
			if c.URL != "" {
				line += " (" + c.URL + ")"
			}
			b.WriteString(r.cite.Render(line) + "\n")
		}
		return b.String()

	case trace.EventError:
		return r.errStyle.Render("✗ "+ev.Content) + "\n"

	case trace.EventAnswer:
		return r.renderMarkdown(ev.Content)
	}
	return ""
}

func (r *Renderer) renderMarkdown(text string) string {
	if r.markdown == nil {
		return text + "\n"
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// compactArgs renders tool arguments as a short single line, truncated so
// large payloads do not flood the terminal.
func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	const maxLen = 120
	s := string(data)
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}
