package tools

import (
	"fmt"
	"net/http"

	"github.com/candor0/candor/internal/tool"
)

// Deps holds the dependencies of the built-in tools. Nil fields disable
// the tools that need them.
type Deps struct {
	Knowledge  Searcher     // enables document_search
	HTTPClient *http.Client // used by fetch_page (nil = http.DefaultClient)
}

// RegisterAll registers every built-in tool whose dependencies are
// available.
func RegisterAll(reg *tool.Registry, deps Deps) error {
	clock, err := NewCurrentTime()
	if err != nil {
		return err
	}
	if err := reg.Register(clock); err != nil {
		return fmt.Errorf("register current_time: %w", err)
	}

	fetch, err := NewFetchPage(deps.HTTPClient)
	if err != nil {
		return err
	}
	if err := reg.Register(fetch); err != nil {
		return fmt.Errorf("register fetch_page: %w", err)
	}

	if deps.Knowledge != nil {
		search, err := NewDocumentSearch(deps.Knowledge)
		if err != nil {
			return err
		}
		if err := reg.Register(search); err != nil {
			return fmt.Errorf("register document_search: %w", err)
		}
	}

	return nil
}
