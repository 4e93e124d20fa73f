package search

import (
	"strings"

	"github.com/hyperjump/kotae/internal/embedding"
)

// Highlight returns a snippet of at most maxLen bytes around the first query term found
// in content, with "..." marking cut ends. Without a match the snippet starts at the
// beginning. maxLen <= 0 returns content unchanged.
func Highlight(content, query string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}
	lower := strings.ToLower(content)
	start := 0
	for _, term := range embedding.Terms(query) {
		if i := strings.Index(lower, term); i >= 0 {
			start = i - maxLen/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	if start+maxLen > len(content) {
		start = len(content) - maxLen
	}
	// move to a word boundary
	if start > 0 {
		if sp := strings.IndexByte(content[start:], ' '); sp >= 0 && sp < maxLen/4 {
			start += sp + 1
		}
	}
	end := start + maxLen
	if end > len(content) {
		end = len(content)
	}
	snippet := strings.ToValidUTF8(content[start:end], "")
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet += "..."
	}
	return snippet
}
