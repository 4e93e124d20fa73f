// Package search retrieves the candidate chunks that best match a question.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Retriever embeds a query and fetches the nearest chunks from the vector index.
type Retriever struct {
	embedder embedding.Embedder
	index    vector.Index
	minScore float64
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithMinScore drops hits whose cosine similarity is below s. Zero keeps every hit.
func WithMinScore(s float64) RetrieverOption {
	return func(r *Retriever) { r.minScore = s }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever over index using embedder for queries.
func NewRetriever(embedder embedding.Embedder, index vector.Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{embedder: embedder, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK candidates, best first. topK <= 0 means models.DefaultTopK.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]models.Source, error) {
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", models.ErrEmbedding, err)
	}
	hits, err := r.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search failed: %w", models.ErrIndex, err)
	}

	candidates := make([]models.Source, 0, len(hits))
	for _, h := range hits {
		if len(candidates) == topK {
			break
		}
		if r.minScore > 0 && h.Score < r.minScore {
			continue
		}
		candidates = append(candidates, models.SourceFromHit(h))
	}
	r.logger.Debug("retrieval done",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}
