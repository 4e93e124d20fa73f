package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hyperjump/kotae/internal/models"
)

var bucketCollections = []byte("collections")

// BoltIndex persists entries in a bbolt file, one bucket per collection, and searches
// by brute-force cosine similarity.
type BoltIndex struct {
	db         *bbolt.DB
	collection string
	dimensions int
}

type boltCollection struct {
	Dimensions int    `json:"dimensions"`
	Distance   string `json:"distance"`
}

type boltPoint struct {
	Seq     uint64         `json:"s"`
	Vector  []float32      `json:"v"`
	Payload models.Payload `json:"p"`
}

// NewBoltIndex opens or creates the bbolt database at path.
func NewBoltIndex(path, collection string, dimensions int) (*BoltIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}
	return &BoltIndex{db: db, collection: collection, dimensions: dimensions}, nil
}

func (b *BoltIndex) bucketName() []byte {
	return []byte("points:" + b.collection)
}

// EnsureCollection creates the collection bucket if absent.
func (b *BoltIndex) EnsureCollection(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketCollections)
		if raw := meta.Get([]byte(b.collection)); raw != nil {
			var c boltCollection
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("failed to decode collection %q: %w", b.collection, err)
			}
			if c.Dimensions != b.dimensions {
				return fmt.Errorf("collection %q has %d dimensions, expected %d", b.collection, c.Dimensions, b.dimensions)
			}
			return nil
		}
		raw, err := json.Marshal(boltCollection{Dimensions: b.dimensions, Distance: "cosine"})
		if err != nil {
			return err
		}
		if err := meta.Put([]byte(b.collection), raw); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(b.bucketName())
		return err
	})
}

// Upsert writes all entries in one transaction.
func (b *BoltIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if err := checkEntries(entries, b.dimensions); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucketName())
		if bucket == nil {
			return ErrCollectionNotFound
		}
		for _, e := range entries {
			p := boltPoint{Vector: e.Vector, Payload: e.Payload}
			if raw := bucket.Get([]byte(e.ID)); raw != nil {
				var old boltPoint
				if err := json.Unmarshal(raw, &old); err == nil {
					p.Seq = old.Seq
				}
			}
			if p.Seq == 0 {
				seq, err := bucket.NextSequence()
				if err != nil {
					return err
				}
				p.Seq = seq
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(e.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByDocument removes every point of sourceDocument.
func (b *BoltIndex) DeleteByDocument(ctx context.Context, sourceDocument string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucketName())
		if bucket == nil {
			return ErrCollectionNotFound
		}
		var doomed [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var p boltPoint
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to decode point %s: %w", k, err)
			}
			if p.Payload.Filename == sourceDocument {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scores every point and returns the top-limit hits.
func (b *BoltIndex) Search(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	if err := checkDimensions(query, b.dimensions); err != nil {
		return nil, err
	}
	type seqHit struct {
		seq uint64
		hit models.SearchHit
	}
	var scored []seqHit
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucketName())
		if bucket == nil {
			return ErrCollectionNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			var p boltPoint
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to decode point %s: %w", k, err)
			}
			scored = append(scored, seqHit{
				seq: p.Seq,
				hit: models.SearchHit{ID: string(k), Score: CosineSimilarity(query, p.Vector), Payload: p.Payload},
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.SearchHit{}, nil
	}
	// keys iterate by id; restore insertion order before ranking
	sort.Slice(scored, func(i, j int) bool { return scored[i].seq < scored[j].seq })
	hits := make([]models.SearchHit, len(scored))
	for i, s := range scored {
		hits[i] = s.hit
	}
	return topHits(hits, limit), nil
}

// Count returns the number of points in the collection.
func (b *BoltIndex) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(b.bucketName()); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}
