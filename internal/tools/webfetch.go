package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/candor0/candor/internal/tool"
)

const (
	// maxFetchBytes caps how much of a response body is read.
	maxFetchBytes = 2 << 20 // 2 MiB

	// maxContentRunes caps the extracted text fed back to the model.
	maxContentRunes = 8000
)

// FetchPageInput defines the fetch_page arguments.
type FetchPageInput struct {
	URL string `json:"url" jsonschema:"the http or https URL to fetch"`
}

// NewFetchPage builds the fetch_page tool: it downloads a page and
// extracts its readable text.
func NewFetchPage(client *http.Client) (*tool.Tool, error) {
	if client == nil {
		client = http.DefaultClient
	}

	schema, err := jsonschema.For[FetchPageInput](nil)
	if err != nil {
		return nil, fmt.Errorf("fetch_page schema: %w", err)
	}

	return &tool.Tool{
		Name:        "fetch_page",
		Description: "Fetch a web page and return its title and readable text content.",
		Schema:      schema,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rawURL, _ := args["url"].(string)
			parsed, err := url.Parse(rawURL)
			if err != nil {
				return nil, &tool.Failure{Message: fmt.Sprintf("invalid url: %v", err), Recoverable: true}
			}
			if parsed.Scheme != "http" && parsed.Scheme != "https" {
				return nil, &tool.Failure{
					Message:     fmt.Sprintf("unsupported url scheme %q (only http and https)", parsed.Scheme),
					Recoverable: true,
				}
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("User-Agent", "candor/1.0")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", parsed, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, &tool.Failure{
					Message:     fmt.Sprintf("fetch %s: unexpected status %d", parsed, resp.StatusCode),
					Recoverable: true,
				}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}

			title, content := extractReadable(body, parsed)
			return map[string]any{
				"title":   title,
				"url":     parsed.String(),
				"content": truncateRunes(content, maxContentRunes),
			}, nil
		},
	}, nil
}

// extractReadable pulls the main text from an HTML document, preferring
// readability extraction and falling back to a plain goquery scrape.
func extractReadable(body []byte, pageURL *url.URL) (title, content string) {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.Title, strings.TrimSpace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()
	content = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return title, content
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
