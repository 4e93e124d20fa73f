package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

var (
	sourceIDPattern = regexp.MustCompile(`SOURCE_ID:\s*(\d+)`)
	quotePattern    = regexp.MustCompile(`(?s)QUOTE:\s*(.*)`)
)

// Parsed is the structured reading of a completion.
type Parsed struct {
	Answer string
	// Fallback is set when the answer marker was missing; the whole response is the
	// answer and it is attributed to the best candidate.
	Fallback bool
	// SourceIndex is -1 when no index could be read.
	SourceIndex int
	Quote       string
	HasQuote    bool
}

// ParseCompletion reads the two-section completion format. It never fails: a missing
// marker, index or quote degrades the result instead.
func ParseCompletion(raw string) Parsed {
	if !strings.Contains(raw, AnswerMarker) {
		return Parsed{Answer: raw, Fallback: true, SourceIndex: 0}
	}

	p := Parsed{SourceIndex: -1}
	parts := strings.SplitN(raw, MetadataMarker, 3)
	p.Answer = strings.TrimSpace(strings.ReplaceAll(parts[0], AnswerMarker, ""))
	if len(parts) < 2 {
		return p
	}

	meta := parts[1]
	if m := sourceIDPattern.FindStringSubmatch(meta); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			p.SourceIndex = idx
		}
	}
	if m := quotePattern.FindStringSubmatch(meta); m != nil {
		p.Quote = cleanQuote(m[1])
		p.HasQuote = true
	}
	return p
}

// cleanQuote trims and removes a single matching pair of enclosing quote characters.
func cleanQuote(q string) string {
	q = strings.TrimSpace(q)
	if len(q) >= 2 && (q[0] == '"' || q[0] == '\'') && q[len(q)-1] == q[0] {
		q = q[1 : len(q)-1]
	}
	return q
}

// Sources resolves the parsed attribution against the candidates that were sent to the
// model. The result has zero or one entries and carries no retrieval score.
func (p Parsed) Sources(candidates []models.Source) []models.Source {
	if p.SourceIndex < 0 || p.SourceIndex >= len(candidates) {
		return []models.Source{}
	}
	src := candidates[p.SourceIndex]
	src.Score = 0
	if p.HasQuote && !p.Fallback {
		src.Text = p.Quote
	}
	return []models.Source{src}
}
