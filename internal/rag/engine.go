// Package rag wires indexing, retrieval and answer synthesis into the question answering
// pipeline used by the server, the watcher and the CLI.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/vector"
)

// Engine is the pipeline facade.
type Engine struct {
	index       vector.Index
	indexer     *indexer.Indexer
	retriever   *search.Retriever
	synthesizer *answer.Synthesizer

	topK             int
	minScore         float64
	replaceOnReindex bool
	logger           *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopK sets how many candidates a question retrieves.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithMinScore sets the retrieval similarity floor. Zero disables it.
func WithMinScore(s float64) Option {
	return func(e *Engine) { e.minScore = s }
}

// WithReplaceOnReindex purges a document's entries before indexing a file again.
func WithReplaceOnReindex(replace bool) Option {
	return func(e *Engine) { e.replaceOnReindex = replace }
}

// WithLogger sets the logger handed to every stage.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds the pipeline. extractor may be nil when files are never indexed by
// path; completer may be nil; questions then only succeed against an empty index.
func NewEngine(embedder embedding.Embedder, index vector.Index, extractor *extract.Extractor, completer llm.Completer, opts ...Option) *Engine {
	e := &Engine{
		index:  index,
		topK:   models.DefaultTopK,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.indexer = indexer.NewIndexer(embedder, index, extractor,
		indexer.WithLogger(e.logger),
		indexer.WithReplaceOnReindex(e.replaceOnReindex))
	e.retriever = search.NewRetriever(embedder, index,
		search.WithMinScore(e.minScore),
		search.WithLogger(e.logger))
	e.synthesizer = answer.NewSynthesizer(completer, answer.WithLogger(e.logger))
	return e
}

// IndexDocument embeds and stores chunks, returning the number of entries written.
func (e *Engine) IndexDocument(ctx context.Context, chunks []models.Chunk) (int, error) {
	return e.indexer.IndexDocument(ctx, chunks)
}

// IndexFile extracts and indexes the file at path under the document name.
func (e *Engine) IndexFile(ctx context.Context, path, name string) (int, error) {
	return e.indexer.IndexFile(ctx, path, name)
}

// IndexDirectory indexes every allowed file below dir.
func (e *Engine) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (int, int, error) {
	return e.indexer.IndexDirectory(ctx, dir, allowedExts)
}

// DeleteDocument removes a document's entries. Unknown documents are a no-op.
func (e *Engine) DeleteDocument(ctx context.Context, sourceDocument string) error {
	return e.indexer.DeleteDocument(ctx, sourceDocument)
}

// Search returns the raw retrieval candidates for query without calling the model.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]models.Source, error) {
	return e.retriever.Retrieve(ctx, query, topK)
}

// AnswerQuestion retrieves candidates for question and synthesizes a cited answer.
func (e *Engine) AnswerQuestion(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	start := time.Now()
	candidates, err := e.retriever.Retrieve(ctx, question, e.topK)
	if err != nil {
		return nil, err
	}
	ans, err := e.synthesizer.Answer(ctx, question, candidates)
	if err != nil {
		return nil, err
	}
	e.logger.Info("question answered",
		zap.Int("candidates", len(candidates)),
		zap.Int("sources", len(ans.Sources)),
		zap.Duration("took", time.Since(start)))
	return ans, nil
}

// Count returns the number of entries in the index.
func (e *Engine) Count(ctx context.Context) (int, error) {
	n, err := e.index.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count entries: %w", models.ErrIndex, err)
	}
	return n, nil
}

// TopK returns the configured number of candidates per question.
func (e *Engine) TopK() int {
	return e.topK
}
