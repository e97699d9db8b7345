package ticketing

import (
	"fmt"
	"html"
	"path"
	"strings"
	"sync"

	"github.com/finchbot/modmail/pkg/entities"
)

// Recorder accumulates the transcript of each open ticket in memory. Entries
// are kept per ticket channel and discarded when the ticket closes.
type Recorder struct {
	mtx  sync.Mutex
	logs map[string][]entities.TranscriptEntry
}

// NewRecorder creates an empty transcript recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		logs: make(map[string][]entities.TranscriptEntry),
	}
}

// Open starts an empty transcript for the channel. Opening an already-open
// transcript keeps the existing entries.
func (r *Recorder) Open(channelID string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.logs[channelID]; !ok {
		r.logs[channelID] = make([]entities.TranscriptEntry, 0)
	}
}

// Append records an entry against the channel's transcript, starting one if
// none exists yet.
func (r *Recorder) Append(channelID string, entry entities.TranscriptEntry) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.logs[channelID] = append(r.logs[channelID], entry)
}

// Entries returns a copy of the channel's transcript so far.
func (r *Recorder) Entries(channelID string) []entities.TranscriptEntry {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	entries := r.logs[channelID]
	out := make([]entities.TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}

// Discard drops the channel's transcript.
func (r *Recorder) Discard(channelID string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	delete(r.logs, channelID)
}

const transcriptTimeFormat = "2006-01-02 15:04:05"

// BuildText renders a transcript as plain text. Newlines inside message
// content are escaped so each entry stays on a single line, with attachments
// listed indented beneath it.
func BuildText(entries []entities.TranscriptEntry) string {
	if len(entries) == 0 {
		return "No messages."
	}

	sb := new(strings.Builder)
	for _, e := range entries {
		ts := e.Timestamp.Time().UTC().Format(transcriptTimeFormat)
		content := strings.ReplaceAll(e.Content, "\n", "\\n")
		fmt.Fprintf(sb, "[%s] %s (%s): %s\n", ts, e.AuthorName, e.AuthorID, content)
		for _, a := range e.Attachments {
			fmt.Fprintf(sb, "    [attachment] %s -> %s\n", a.Filename, a.URL)
		}
	}
	return sb.String()
}

// BuildHTML renders a transcript as a standalone HTML document. Image
// attachments are embedded inline; everything else becomes a link.
func BuildHTML(title string, entries []entities.TranscriptEntry) string {
	sb := new(strings.Builder)
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("<style>\n")
	sb.WriteString("body { font-family: sans-serif; background: #313338; color: #dbdee1; margin: 2em; }\n")
	sb.WriteString(".entry { margin-bottom: 1em; }\n")
	sb.WriteString(".author { font-weight: bold; color: #f2f3f5; }\n")
	sb.WriteString(".timestamp { color: #949ba4; font-size: 0.8em; margin-left: 0.5em; }\n")
	sb.WriteString(".content { white-space: pre-wrap; }\n")
	sb.WriteString(".attachment img { max-width: 400px; display: block; margin-top: 0.3em; }\n")
	sb.WriteString("</style>\n</head>\n<body>\n")
	fmt.Fprintf(sb, "<h1>%s</h1>\n", html.EscapeString(title))

	if len(entries) == 0 {
		sb.WriteString("<p>No messages.</p>\n")
	}

	for _, e := range entries {
		ts := e.Timestamp.Time().UTC().Format(transcriptTimeFormat)
		sb.WriteString("<div class=\"entry\">\n")
		fmt.Fprintf(sb, "<span class=\"author\">%s</span><span class=\"timestamp\">%s</span>\n",
			html.EscapeString(e.AuthorName), ts)
		if e.Content != "" {
			fmt.Fprintf(sb, "<div class=\"content\">%s</div>\n", html.EscapeString(e.Content))
		}
		for _, a := range e.Attachments {
			sb.WriteString("<div class=\"attachment\">")
			if isImageFilename(a.Filename) {
				fmt.Fprintf(sb, "<a href=\"%s\"><img src=\"%s\" alt=\"%s\"></a>",
					html.EscapeString(a.URL), html.EscapeString(a.URL), html.EscapeString(a.Filename))
			} else {
				fmt.Fprintf(sb, "<a href=\"%s\">%s</a>",
					html.EscapeString(a.URL), html.EscapeString(a.Filename))
			}
			sb.WriteString("</div>\n")
		}
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

func isImageFilename(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	default:
		return false
	}
}
