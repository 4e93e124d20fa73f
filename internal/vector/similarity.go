package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when either
// is zero or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// topHits sorts hits by descending score and keeps the first limit. Hits must be
// passed in insertion order; equal scores keep that order.
func topHits(hits []models.SearchHit, limit int) []models.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits
}

func checkDimensions(v []float32, dims int) error {
	if len(v) != dims {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), dims)
	}
	return nil
}

func checkEntries(entries []models.IndexEntry, dims int) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("index entry has empty id")
		}
		if err := checkDimensions(e.Vector, dims); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
	}
	return nil
}
