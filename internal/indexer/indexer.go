// Package indexer embeds document chunks and writes them to the vector index.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Indexer turns chunks into index entries.
type Indexer struct {
	embedder         embedding.Embedder
	index            vector.Index
	extractor        *extract.Extractor
	replaceOnReindex bool
	logger           *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithReplaceOnReindex makes IndexFile delete a document's entries before writing the
// new ones, so a shorter new version leaves no stale pages behind.
func WithReplaceOnReindex(replace bool) IndexerOption {
	return func(idx *Indexer) { idx.replaceOnReindex = replace }
}

// NewIndexer creates an indexer. extractor may be nil when only IndexDocument is used.
func NewIndexer(embedder embedding.Embedder, index vector.Index, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument embeds all chunks in one batch and upserts one entry per chunk in one
// batch. Entry IDs derive from (source document, position in chunks). An empty slice
// writes nothing and returns 0.
func (idx *Indexer) IndexDocument(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		if err := ch.Validate(); err != nil {
			return 0, fmt.Errorf("invalid chunk %d: %w", i, err)
		}
		texts[i] = ch.Text
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to generate embeddings: %w", models.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
	}

	entries := make([]models.IndexEntry, len(chunks))
	for i, ch := range chunks {
		entries[i] = models.IndexEntry{
			ID:     fileid.PointID(ch.SourceDocument, i),
			Vector: vectors[i],
			Payload: models.Payload{
				Filename:   ch.SourceDocument,
				PageNumber: ch.PageNumber,
				Text:       ch.Text,
			},
		}
	}
	if err := idx.index.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("%w: failed to upsert entries: %w", models.ErrIndex, err)
	}
	idx.logger.Debug("indexer document indexed",
		zap.String("document", chunks[0].SourceDocument),
		zap.Int("entries", len(entries)))
	return len(entries), nil
}

// DeleteDocument removes every entry of sourceDocument. Unknown documents are a no-op.
func (idx *Indexer) DeleteDocument(ctx context.Context, sourceDocument string) error {
	idx.logger.Debug("indexer deleting document", zap.String("document", sourceDocument))
	if err := idx.index.DeleteByDocument(ctx, sourceDocument); err != nil {
		return fmt.Errorf("%w: failed to delete document %q: %w", models.ErrIndex, sourceDocument, err)
	}
	return nil
}

// IndexFile extracts the file at path and indexes its chunks under name (the file's
// base name when empty). Returns the number of entries written.
func (idx *Indexer) IndexFile(ctx context.Context, path, name string) (int, error) {
	if idx.extractor == nil {
		return 0, fmt.Errorf("indexer has no extractor")
	}
	if name == "" {
		name = fileid.DocumentName(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", path)
	}
	idx.logger.Debug("indexer indexing file", zap.String("path", path), zap.String("document", name))

	chunks, err := idx.extractor.ExtractChunks(path, name)
	if err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}
	if idx.replaceOnReindex {
		if err := idx.DeleteDocument(ctx, name); err != nil {
			return 0, err
		}
	}
	n, err := idx.IndexDocument(ctx, chunks)
	if err != nil {
		return 0, err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", path), zap.Int("entries", n))
	return n, nil
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (all supported formats when empty). Returns the number of files
// and entries indexed and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (files, entries int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		n, indexErr := idx.IndexFile(ctx, path, "")
		if indexErr != nil {
			return fmt.Errorf("%s: %w", path, indexErr)
		}
		files++
		entries += n
		return nil
	})
	return files, entries, err
}

// ExtensionAllowed reports whether ext is in allowed (case-insensitive, dot optional).
// An empty allowed list accepts every format the extractor supports.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return extract.Supported(ext)
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
