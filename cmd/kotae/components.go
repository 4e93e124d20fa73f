package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Index    vector.Index
	Store    *storage.FileStore
	Engine   *rag.Engine
}

// Close releases the index and the embedder.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Indexing.AllowedExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	index, err := vector.NewIndex(vector.Options{
		Type:       cfg.Vector.Type,
		Dimensions: cfg.Embedding.Dimensions,
		Collection: cfg.Vector.Collection,
		DataDir:    cfg.Storage.DataDir,
		URL:        cfg.Vector.URL,
		APIKey:     cfg.Vector.APIKey,
		Timeout:    cfg.Vector.Timeout,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		_ = index.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to ensure collection %q: %w", cfg.Vector.Collection, err)
	}
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.Type),
		zap.String("collection", cfg.Vector.Collection))

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		_ = index.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	var opts []rag.Option
	opts = append(opts,
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithMinScore(cfg.Retrieval.MinScore),
		rag.WithReplaceOnReindex(cfg.Indexing.ReplaceOnReindexOrDefault()),
		rag.WithLogger(logger))
	extractor := extract.NewExtractor(extract.WithMaxWords(cfg.Indexing.MaxChunkWords, cfg.Indexing.ChunkOverlap))

	engine := rag.NewEngine(embedder, index, extractor, completer, opts...)
	return &Components{
		Embedder: embedder,
		Index:    index,
		Store:    store,
		Engine:   engine,
	}, nil
}

// newEmbedder builds the configured provider. A missing ONNX model falls back to the
// hash embedder so the rest of the pipeline still works.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(ec.BaseURL, ec.APIKey, ec.Model, ec.Dimensions)
	case "hash":
		return embedding.NewHashEmbedder(ec.Dimensions), nil
	default:
		e, err := embedding.NewONNXEmbedder(ec.ModelPath, ec.Dimensions, ec.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, falling back to hash embedder",
				zap.String("model_path", ec.ModelPath), zap.Error(err))
			return embedding.NewHashEmbedder(ec.Dimensions), nil
		}
		return e, nil
	}
}

// newCompleter returns nil without an API key; questions then fail with ErrLLM while
// indexing and search keep working.
func newCompleter(cfg *config.Config, logger *zap.Logger) (llm.Completer, error) {
	lc := cfg.LLM
	if lc.APIKey == "" {
		logger.Warn("no LLM API key set (GROQ_API_KEY or llm.api_key); questions will fail")
		return nil, nil
	}
	client, err := llm.NewClient(lc.APIKey,
		llm.WithBaseURL(lc.BaseURL),
		llm.WithModel(lc.Model),
		llm.WithTemperature(lc.TemperatureOrDefault()),
		llm.WithMaxTokens(lc.MaxTokens),
		llm.WithHTTPClient(newHTTPClient(lc.Timeout)),
		llm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return client, nil
}
