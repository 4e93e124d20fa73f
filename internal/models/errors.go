package models

import "errors"

// Failure classes surfaced by the answering pipeline. Callers match them with errors.Is.
var (
	ErrEmbedding = errors.New("embedding provider failed")
	ErrIndex     = errors.New("vector index failed")
	ErrLLM       = errors.New("language model failed")
	ErrNotFound  = errors.New("not found")
)
