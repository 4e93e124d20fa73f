package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// QdrantIndex talks to a Qdrant server over its REST API.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client
}

// NewQdrantIndex creates a client for collection at baseURL (e.g. http://localhost:6333).
func NewQdrantIndex(baseURL, apiKey, collection string, dimensions int, timeout time.Duration) (*QdrantIndex, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type qdrantStatusError struct {
	method string
	path   string
	code   int
	body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: status %d: %s", e.method, e.path, e.code, e.body)
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

// EnsureCollection creates the collection only when GET reports it missing.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != q.dimensions {
			return fmt.Errorf("collection %q has %d dimensions, expected %d", q.collection, size, q.dimensions)
		}
		return nil
	}
	var se *qdrantStatusError
	if !errors.As(err, &se) || se.code != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimensions,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, http.MethodPut, q.collectionPath(""), body, nil)
}

// Upsert writes all entries in one request and waits for them to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if err := checkEntries(entries, q.dimensions); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":      e.ID,
			"vector":  e.Vector,
			"payload": e.Payload,
		}
	}
	return q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// DeleteByDocument removes points whose payload filename matches.
func (q *QdrantIndex) DeleteByDocument(ctx context.Context, sourceDocument string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "filename", "match": map[string]any{"value": sourceDocument}},
			},
		},
	}
	return q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil)
}

// Search returns the server's top-limit hits with payloads.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, limit int) ([]models.SearchHit, error) {
	if err := checkDimensions(query, q.dimensions); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.SearchHit{}, nil
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload models.Payload `json:"payload"`
		} `json:"result"`
	}
	body := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, models.SearchHit{ID: fmt.Sprint(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return topHits(hits, limit), nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &qdrantStatusError{method: method, path: path, code: resp.StatusCode, body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}
