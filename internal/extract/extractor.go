// Package extract turns document files into page-level chunks of normalized text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// SupportedExtensions lists the formats the extractor understands.
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".odp", ".ods", ".txt", ".md"}

// Extractor extracts page-level chunks from document files.
type Extractor struct {
	chunker *Chunker
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxWords splits pages longer than maxWords into overlapping windows that keep
// the page number. maxWords <= 0 disables splitting.
func WithMaxWords(maxWords, overlap int) Option {
	return func(e *Extractor) {
		if maxWords > 0 {
			e.chunker = NewChunker(maxWords, overlap)
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

// ExtractChunks reads the file at path and returns its chunks attributed to name.
// Pages that are empty after whitespace normalization are omitted.
func (e *Extractor) ExtractChunks(path, name string) ([]models.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return e.ExtractBytesChunks(content, filepath.Ext(path), name)
}

// ExtractBytesChunks extracts chunks from content based on ext (e.g. ".pdf").
func (e *Extractor) ExtractBytesChunks(content []byte, ext, name string) ([]models.Chunk, error) {
	pages, err := Pages(content, ext)
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	for i, page := range pages {
		text := utils.CollapseWhitespace(page)
		if text == "" {
			continue
		}
		pageNumber := i + 1
		if e.chunker == nil {
			chunks = append(chunks, models.Chunk{SourceDocument: name, PageNumber: pageNumber, Text: text})
			continue
		}
		for _, window := range e.chunker.Split(text) {
			chunks = append(chunks, models.Chunk{SourceDocument: name, PageNumber: pageNumber, Text: window})
		}
	}
	return chunks, nil
}

// Pages returns the raw text of each page (slide, sheet) of content, in order.
// Empty pages are kept so positions map to 1-based page numbers.
func Pages(content []byte, ext string) ([]string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractOpenDocument(content, odpPageTag)
	case ".ods":
		return extractOpenDocument(content, odsPageTag)
	case ".txt", ".md":
		return extractPlain(content), nil
	default:
		return nil, fmt.Errorf("unsupported document type %q", ext)
	}
}
