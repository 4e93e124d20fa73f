package models

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of candidates retrieved per question.
const DefaultTopK = 3

// ChatRequest is the body of a question posted to the HTTP API. Older clients send the
// text as "question".
type ChatRequest struct {
	Message  string `json:"message"`
	Question string `json:"question,omitempty"`
}

// Validate trims the message and rejects empty questions.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		r.Message = r.Question
	}
	r.Message = strings.TrimSpace(r.Message)
	if r.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}

// SearchRequest asks for raw retrieval candidates without answer synthesis.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the request has a query and normalizes TopK.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > 100 {
		r.TopK = 100
	}
	return nil
}
