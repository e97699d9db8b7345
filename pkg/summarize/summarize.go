// Package summarize condenses a ticket's user messages into a one-line
// summary for the close report. An OpenAI-backed summarizer is used when an
// API key is configured; otherwise (or on any failure) a plain truncation of
// the user's messages is used instead.
package summarize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/finchbot/modmail/pkg/logging"
)

// fallbackLimit caps the truncation fallback, in runes.
const fallbackLimit = 200

// Summarizer produces a short summary of the user's messages.
type Summarizer interface {
	Summarize(ctx context.Context, messages []string) (string, error)
}

// BestEffort summarizes with s when possible, falling back to Truncate when s
// is nil or fails. It never returns an empty string.
func BestEffort(ctx context.Context, l *slog.Logger, s Summarizer, messages []string) string {
	if s == nil {
		return Truncate(messages)
	}

	summary, err := s.Summarize(ctx, messages)
	if err != nil {
		l.Warn("Error summarizing ticket, falling back to truncation", slog.String(logging.KeyError, err.Error()))
		return Truncate(messages)
	}
	if strings.TrimSpace(summary) == "" {
		return Truncate(messages)
	}
	return summary
}

// Truncate joins the messages and cuts them down to a summary-sized blurb.
func Truncate(messages []string) string {
	text := strings.TrimSpace(strings.Join(messages, " "))
	if text == "" {
		return "No clear problem statement."
	}

	runes := []rune(text)
	if len(runes) <= fallbackLimit {
		return text
	}
	return string(runes[:fallbackLimit]) + "…"
}
