package answer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Section markers of the completion format.
const (
	AnswerMarker   = "###FINAL_ANSWER###"
	MetadataMarker = "###METADATA###"
)

// SystemPrompt instructs the model to pick one candidate and quote it.
const SystemPrompt = `You are an AI Analyst.
Step 1: Read the candidates and find the answer.
Step 2: Select the SINGLE BEST Source ID.
Step 3: Extract the EXACT sentence/paragraph used for the answer. Clean it from citation numbers like [1], [12].

IMPORTANT: The user MUST NOT see your steps.
You must output ONLY the final result in this specific format:

` + AnswerMarker + `
[Write your clear answer here]

` + MetadataMarker + `
SOURCE_ID: [X]
QUOTE: [Exact text from document]
`

// BuildPrompt renders the user message: every candidate in rank order, then the question.
func BuildPrompt(question string, candidates []models.Source) string {
	var b strings.Builder
	b.WriteString("Candidates:\n")
	for i, c := range candidates {
		text := strings.TrimSpace(strings.ReplaceAll(c.Text, "\n", " "))
		fmt.Fprintf(&b, "--- [ID: %d] ---\nFile: %s (Pg %d)\nText: %s\n\n", i, c.Filename, c.PageNumber, text)
	}
	b.WriteString("\nQuestion: \n")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}
