package vector

import (
	"fmt"
	"path/filepath"
	"time"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory keeps everything in process, optionally snapshotting to a file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeSQLite stores vectors in a SQLite database. Default.
	IndexTypeSQLite IndexType = "sqlite"
	// IndexTypeBolt stores vectors in a bbolt file.
	IndexTypeBolt IndexType = "bolt"
	// IndexTypeQdrant uses a remote Qdrant server.
	IndexTypeQdrant IndexType = "qdrant"
)

// Options selects and configures an index backend.
type Options struct {
	Type       string
	Dimensions int
	Collection string
	// DataDir holds the files of the embedded backends.
	DataDir string
	// URL is the Qdrant endpoint. ":memory:" selects the in-process index.
	URL     string
	APIKey  string
	Timeout time.Duration
}

// NewIndex creates a vector index of the configured type.
func NewIndex(opts Options) (Index, error) {
	collection := opts.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	switch IndexType(opts.Type) {
	case IndexTypeMemory:
		path := ""
		if opts.DataDir != "" {
			path = filepath.Join(opts.DataDir, collection+".vec")
		}
		return NewMemoryIndex(opts.Dimensions, path)
	case IndexTypeSQLite, "":
		path := ":memory:"
		if opts.DataDir != "" {
			path = filepath.Join(opts.DataDir, "vectors.db")
		}
		return NewSQLiteIndex(path, collection, opts.Dimensions)
	case IndexTypeBolt:
		if opts.DataDir == "" {
			return nil, fmt.Errorf("bolt index requires a data directory")
		}
		return NewBoltIndex(filepath.Join(opts.DataDir, "vectors.bolt"), collection, opts.Dimensions)
	case IndexTypeQdrant:
		if opts.URL == ":memory:" {
			return NewMemoryIndex(opts.Dimensions, "")
		}
		return NewQdrantIndex(opts.URL, opts.APIKey, collection, opts.Dimensions, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, sqlite, bolt, qdrant)", opts.Type)
	}
}
