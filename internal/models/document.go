// Package models defines core data structures for chunks, index entries, and answers.
package models

import "fmt"

// Chunk is one retrievable unit of document text. Text extraction emits one chunk
// per non-empty page.
type Chunk struct {
	SourceDocument string `json:"source_document"`
	PageNumber     int    `json:"page_number"` // 1-based
	Text           string `json:"text"`
}

// Validate reports whether the chunk can be indexed.
func (c Chunk) Validate() error {
	if c.SourceDocument == "" {
		return fmt.Errorf("chunk has no source document")
	}
	if c.PageNumber < 1 {
		return fmt.Errorf("chunk %q has invalid page number %d", c.SourceDocument, c.PageNumber)
	}
	if c.Text == "" {
		return fmt.Errorf("chunk %q page %d is empty", c.SourceDocument, c.PageNumber)
	}
	return nil
}

// Payload is the metadata stored next to each vector. It is the authoritative copy
// of the chunk text used at answer time.
type Payload struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// IndexEntry is the persisted unit inside a vector index.
type IndexEntry struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"-"`
	Payload Payload   `json:"payload"`
}
