package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search. When a
// path is set, the collection is loaded by EnsureCollection and written back on Save
// and Close.
type MemoryIndex struct {
	dimensions int
	path       string
	created    bool
	entries    []models.IndexEntry // insertion order
	pos        map[string]int      // id -> position in entries
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension. path may be empty.
func NewMemoryIndex(dimensions int, path string) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		path:       path,
		pos:        make(map[string]int),
	}, nil
}

// EnsureCollection creates the collection, loading it from disk when a snapshot exists.
func (m *MemoryIndex) EnsureCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return nil
	}
	if err := m.loadLocked(); err != nil {
		return err
	}
	m.created = true
	return nil
}

// Upsert inserts new entries at the end and replaces existing ones in place.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if err := checkEntries(entries, m.dimensions); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return ErrCollectionNotFound
	}
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		if i, ok := m.pos[e.ID]; ok {
			m.entries[i] = e
			continue
		}
		m.pos[e.ID] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return nil
}

// DeleteByDocument removes all entries of sourceDocument.
func (m *MemoryIndex) DeleteByDocument(ctx context.Context, sourceDocument string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return ErrCollectionNotFound
	}
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Payload.Filename != sourceDocument {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(m.entries); i++ {
		m.entries[i] = models.IndexEntry{}
	}
	m.entries = kept
	m.pos = make(map[string]int, len(kept))
	for i, e := range kept {
		m.pos[e.ID] = i
	}
	return nil
}

// Search returns the top-limit entries by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	if err := checkDimensions(query, m.dimensions); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return nil, ErrCollectionNotFound
	}
	if limit <= 0 || len(m.entries) == 0 {
		return []models.SearchHit{}, nil
	}
	hits := make([]models.SearchHit, len(m.entries))
	for i, e := range m.entries {
		hits[i] = models.SearchHit{ID: e.ID, Score: CosineSimilarity(query, e.Vector), Payload: e.Payload}
	}
	return topHits(hits, limit), nil
}

// Count returns the number of entries.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Save persists the collection to the configured path. Format: dimension (4), n (4),
// then per entry: idLen (4), id, vector (dimension*4), payloadLen (4), payload JSON.
func (m *MemoryIndex) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

func (m *MemoryIndex) saveLocked() error {
	if m.path == "" || !m.created {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := m.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range m.entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		if err := writeBlock(w, []byte(e.ID)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		if err := writeBlock(w, payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// loadLocked replaces the contents with the snapshot at path. A missing file leaves
// the index empty.
func (m *MemoryIndex) loadLocked() error {
	if m.path == "" {
		return nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	entries := make([]models.IndexEntry, 0, n)
	pos := make(map[string]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readBlock(f)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		raw, err := readBlock(f)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		var p models.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		pos[string(id)] = len(entries)
		entries = append(entries, models.IndexEntry{ID: string(id), Vector: bytesToFloat32Slice(buf), Payload: p})
	}
	m.entries = entries
	m.pos = pos
	return nil
}

func writeBlock(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Close writes the snapshot when a path is configured.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}
