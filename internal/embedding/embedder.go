// Package embedding maps text to dense vectors via ONNX Runtime, an OpenAI-compatible
// HTTP endpoint, or a deterministic hashing embedder, with an optional LRU cache.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text. Embed is order-preserving and returns
// exactly one vector per input; if any input fails the whole call fails.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// EmbedOne embeds a single text through the batch method.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

// checkBatch verifies an embedder result matches its input.
func checkBatch(vecs [][]float32, n, dims int) error {
	if len(vecs) != n {
		return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), n)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("missing embedding for input %d", i)
		}
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), dims)
		}
	}
	return nil
}
