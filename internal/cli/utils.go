// Package cli renders answers, candidates and file lists for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	quoteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
	rankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

const snippetLen = 200

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its source to w.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintln(w, answerStyle.Render(ans.Answer))
	if len(ans.Sources) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(no source cited)"))
		return nil
	}
	for _, s := range ans.Sources {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Source: %s (page %d)", s.Filename, s.PageNumber)))
		fmt.Fprintln(w, quoteStyle.Render("“"+utils.Truncate(s.Text, 2*snippetLen)+"”"))
	}
	return nil
}

// WriteCandidates writes raw retrieval candidates to w.
func WriteCandidates(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", mutedStyle.Render(fmt.Sprintf("Found %d candidates in %dms", len(resp.Candidates), resp.QueryTime)))
	for i, c := range resp.Candidates {
		fmt.Fprintf(w, "%s %s\n", rankStyle.Render(fmt.Sprintf("[%d]", i)),
			headerStyle.Render(fmt.Sprintf("%s (page %d)", c.Filename, c.PageNumber)))
		fmt.Fprintf(w, "%s\n", mutedStyle.Render(fmt.Sprintf("score %.4f", c.Score)))
		fmt.Fprintf(w, "%s\n\n", search.Highlight(c.Text, resp.Query, snippetLen))
	}
	return nil
}

// WriteFiles writes stored document names to w.
func WriteFiles(w io.Writer, files []string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, models.FilesResponse{Files: files})
	}
	if len(files) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no documents"))
		return nil
	}
	for _, f := range files {
		fmt.Fprintln(w, f)
	}
	return nil
}
