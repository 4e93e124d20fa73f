// Package vector provides vector indexes that store embeddings with their chunk payload
// and answer nearest-neighbor queries by cosine similarity.
package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "doc_rag_collection"

// ErrCollectionNotFound is returned by data operations before EnsureCollection has run.
var ErrCollectionNotFound = errors.New("collection does not exist")

// Index stores index entries and searches them.
//
// EnsureCollection is idempotent and never alters an existing collection. Upsert
// replaces entries by ID. DeleteByDocument removes every entry whose payload names the
// document and is a no-op for unknown documents. Search returns at most limit hits by
// descending similarity; an empty collection yields an empty result.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	DeleteByDocument(ctx context.Context, sourceDocument string) error
	Search(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
