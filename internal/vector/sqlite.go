package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteIndex keeps vectors as little-endian float32 blobs in SQLite and searches
// them by brute-force cosine similarity.
type SQLiteIndex struct {
	db         *sql.DB
	collection string
	dimensions int
}

// NewSQLiteIndex opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteIndex(dbPath, collection string, dimensions int) (*SQLiteIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteIndex{db: db, collection: collection, dimensions: dimensions}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		distance TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS points (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		source_document TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		UNIQUE (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_points_document ON points(collection, source_document);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureCollection registers the collection if absent. An existing collection with a
// different dimension is reported, not altered.
func (s *SQLiteIndex) EnsureCollection(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimensions, distance) VALUES (?, ?, 'cosine')
		 ON CONFLICT(name) DO NOTHING`,
		s.collection, s.dimensions,
	); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	var dims int
	if err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM collections WHERE name = ?`, s.collection,
	).Scan(&dims); err != nil {
		return fmt.Errorf("failed to read collection: %w", err)
	}
	if dims != s.dimensions {
		return fmt.Errorf("collection %q has %d dimensions, expected %d", s.collection, dims, s.dimensions)
	}
	return nil
}

func (s *SQLiteIndex) requireCollection(ctx context.Context) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, s.collection).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCollectionNotFound
	}
	return err
}

// Upsert writes all entries in one transaction. Replaced rows keep their insertion position.
func (s *SQLiteIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if err := checkEntries(entries, s.dimensions); err != nil {
		return err
	}
	if err := s.requireCollection(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (collection, id, source_document, page_number, text, vector)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
			source_document = excluded.source_document,
			page_number = excluded.page_number,
			text = excluded.text,
			vector = excluded.vector`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			s.collection, e.ID, e.Payload.Filename, e.Payload.PageNumber, e.Payload.Text,
			float32SliceToBytes(e.Vector),
		); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteByDocument removes every point of sourceDocument.
func (s *SQLiteIndex) DeleteByDocument(ctx context.Context, sourceDocument string) error {
	if err := s.requireCollection(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM points WHERE collection = ? AND source_document = ?`,
		s.collection, sourceDocument,
	)
	return err
}

// Search scans the collection in insertion order and returns the top-limit hits.
func (s *SQLiteIndex) Search(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	if err := checkDimensions(query, s.dimensions); err != nil {
		return nil, err
	}
	if err := s.requireCollection(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.SearchHit{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_document, page_number, text, vector
		 FROM points WHERE collection = ? ORDER BY seq`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []models.SearchHit{}
	for rows.Next() {
		var h models.SearchHit
		var blob []byte
		if err := rows.Scan(&h.ID, &h.Payload.Filename, &h.Payload.PageNumber, &h.Payload.Text, &blob); err != nil {
			return nil, err
		}
		h.Score = CosineSimilarity(query, bytesToFloat32Slice(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topHits(hits, limit), nil
}

// Count returns the number of points in the collection.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM points WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
