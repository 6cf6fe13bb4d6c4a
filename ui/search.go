package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"hermitcrab/storage"
)

const maxSearchResults = 8

// MessageMatch is one history hit for /find.
type MessageMatch struct {
	Index   int
	Role    string
	Preview string
	Score   int
}

// historySource adapts messages to fuzzy.Source.
type historySource []storage.Message

func (h historySource) String(i int) string { return h[i].Content }
func (h historySource) Len() int            { return len(h) }

// findMessages fuzzy-matches query against the history, best first.
func findMessages(query string, messages []storage.Message, previewWidth int) []MessageMatch {
	query = strings.TrimSpace(query)
	if query == "" || len(messages) == 0 {
		return nil
	}

	matches := fuzzy.FindFrom(query, historySource(messages))
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}

	out := make([]MessageMatch, 0, len(matches))
	for _, m := range matches {
		msg := messages[m.Index]
		out = append(out, MessageMatch{
			Index:   m.Index,
			Role:    msg.Role,
			Preview: preview(msg.Content, firstMatch(m.MatchedIndexes), previewWidth),
			Score:   m.Score,
		})
	}
	return out
}

func firstMatch(indexes []int) int {
	if len(indexes) == 0 {
		return 0
	}
	return indexes[0]
}

// preview is a single-line excerpt starting a little before the match.
func preview(content string, at, width int) string {
	start := at - 20
	if start < 0 {
		start = 0
	}
	for start > 0 && start < len(content) && !isRuneStart(content[start]) {
		start--
	}
	excerpt := strings.Join(strings.Fields(content[start:]), " ")
	if start > 0 {
		excerpt = "…" + excerpt
	}
	return runewidth.Truncate(excerpt, max(width, 10), "…")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func formatMatches(query string, matches []MessageMatch) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No matches for %q", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matches for %q:\n\n", len(matches), query)
	for _, m := range matches {
		fmt.Fprintf(&b, "- **%s** #%d: %s\n", m.Role, m.Index+1, m.Preview)
	}
	return b.String()
}
