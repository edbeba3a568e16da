package web

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/candor0/candor/internal/model"
)

const (
	titleTimeout  = 15 * time.Second
	titleMaxRunes = 80
)

const titlePrompt = "Summarize the following message as a conversation title " +
	"of at most six words. Respond with the title only, no quotes, no " +
	"punctuation at the end.\n\nMessage: "

// generateTitleAsync asks the model for a short title based on the first
// user message. Best effort: any failure is logged and the conversation
// simply keeps its empty title.
func (s *Server) generateTitleAsync(reqCtx context.Context, conversationID uuid.UUID, firstMessage string) {
	if s.adapter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), titleTimeout)
	go func() {
		defer cancel()

		result, err := s.adapter.Step(ctx, []model.Message{
			model.UserMessage(titlePrompt + firstMessage),
		})
		if err != nil {
			s.logger.Debug("title generation failed", "conversation_id", conversationID, "error", err)
			return
		}

		title := sanitizeTitle(result.Answer)
		if title == "" {
			return
		}
		if err := s.store.SetTitle(ctx, conversationID, title); err != nil {
			s.logger.Debug("title update failed", "conversation_id", conversationID, "error", err)
			return
		}
		s.logger.Debug("generated conversation title", "conversation_id", conversationID, "title", title)
	}()
}

// sanitizeTitle collapses the model output to a single trimmed line,
// stripping quotes and bounding the length.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.Trim(title, `"'`)

	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = strings.TrimSpace(string(runes[:titleMaxRunes]))
	}
	return title
}
