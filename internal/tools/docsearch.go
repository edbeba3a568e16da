// Package tools contains the built-in tools the agent ships with:
// knowledge base search, web page fetching, and the clock.
package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/candor0/candor/internal/knowledge"
	"github.com/candor0/candor/internal/tool"
)

// DocumentSearchInput defines the document_search arguments.
type DocumentSearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 5)"`
}

// Searcher is the slice of the knowledge store this tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*knowledge.Chunk, error)
}

// NewDocumentSearch builds the document_search tool. Its output carries a
// citations list so sources surface in the reasoning trace.
func NewDocumentSearch(searcher Searcher) (*tool.Tool, error) {
	schema, err := jsonschema.For[DocumentSearchInput](nil)
	if err != nil {
		return nil, fmt.Errorf("document_search schema: %w", err)
	}

	return &tool.Tool{
		Name:        "document_search",
		Description: "Search the knowledge base for documents relevant to a query. Returns matching passages with source citations.",
		Schema:      schema,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, &tool.Failure{Message: "query must not be empty", Recoverable: true}
			}
			limit := intArg(args, "limit", 5)

			chunks, err := searcher.Search(ctx, query, limit)
			if err != nil {
				return nil, fmt.Errorf("document search: %w", err)
			}

			results := make([]map[string]any, 0, len(chunks))
			citations := make([]map[string]any, 0, len(chunks))
			for _, c := range chunks {
				results = append(results, map[string]any{
					"title":      c.Title,
					"content":    c.Content,
					"similarity": c.Similarity,
				})
				citation := map[string]any{"title": c.Title}
				if c.URL != "" {
					citation["url"] = c.URL
				}
				if c.PageStart != nil {
					citation["page_span_start"] = *c.PageStart
				}
				if c.PageEnd != nil {
					citation["page_span_end"] = *c.PageEnd
				}
				citations = append(citations, citation)
			}

			return map[string]any{
				"results":   results,
				"citations": citations,
			}, nil
		},
	}, nil
}

// intArg reads an integer argument that may arrive as any JSON number.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}
