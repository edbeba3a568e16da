package trace

import (
	"encoding/json"
	"fmt"
)

// Citation points at a source document that grounded part of an answer.
// Page spans are optional; they are present for paginated sources (PDFs)
// and absent for web pages.
type Citation struct {
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	PageStart *int   `json:"page_span_start,omitempty"`
	PageEnd   *int   `json:"page_span_end,omitempty"`
}

// PageRange renders the page span for display: "pp. 3–5" for a range,
// "p. 3" for a single page, "" when no page metadata is present.
func (c Citation) PageRange() string {
	switch {
	case c.PageStart == nil:
		return ""
	case c.PageEnd == nil || *c.PageEnd == *c.PageStart:
		return fmt.Sprintf("p. %d", *c.PageStart)
	default:
		return fmt.Sprintf("pp. %d–%d", *c.PageStart, *c.PageEnd)
	}
}

// ExtractCitations is the dedicated parsing step that detects
// citation-shaped data inside a tool output. It accepts the shapes tools
// actually produce: a single map, a slice of maps, a JSON string encoding
// either, or a map with a "citations" key holding one of the above.
// Anything unrecognized yields nil; extraction never fails a turn.
func ExtractCitations(output any) []Citation {
	switch v := output.(type) {
	case nil:
		return nil
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil
		}
		// Guard against strings that decode to themselves-as-scalars.
		if _, ok := decoded.(string); ok {
			return nil
		}
		return ExtractCitations(decoded)
	case map[string]any:
		if nested, ok := v["citations"]; ok {
			return ExtractCitations(nested)
		}
		if c, ok := citationFromMap(v); ok {
			return []Citation{c}
		}
		return nil
	case []any:
		var out []Citation
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if c, ok := citationFromMap(m); ok {
				out = append(out, c)
			}
		}
		return out
	case []Citation:
		return v
	case []map[string]any:
		var out []Citation
		for _, m := range v {
			if c, ok := citationFromMap(m); ok {
				out = append(out, c)
			}
		}
		return out
	default:
		return nil
	}
}

// citationFromMap converts one decoded mapping into a Citation.
// A title is required; everything else is optional.
func citationFromMap(m map[string]any) (Citation, bool) {
	title, _ := m["title"].(string)
	if title == "" {
		return Citation{}, false
	}
	c := Citation{Title: title}
	if url, ok := m["url"].(string); ok {
		c.URL = url
	}
	if p, ok := intFromAny(m["page_span_start"]); ok {
		c.PageStart = &p
	}
	if p, ok := intFromAny(m["page_span_end"]); ok {
		c.PageEnd = &p
	}
	return c, true
}

// intFromAny handles the numeric types that survive JSON decoding.
func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
