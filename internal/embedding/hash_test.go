package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder_deterministicUnitVectors(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	a, err := e.Embed(ctx, []string{"The sky is blue.", "Grass is green."})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, []string{"The sky is blue."})
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 2 || len(a[0]) != 384 {
		t.Fatalf("unexpected shape %d x %d", len(a), len(a[0]))
	}
	if !equalVec(a[0], b[0]) {
		t.Error("same text should embed identically")
	}
	if n := math.Sqrt(dot(a[0], a[0])); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
}

func TestHashEmbedder_relatedTextsCloser(t *testing.T) {
	e := NewHashEmbedder(384)
	vecs, err := e.Embed(context.Background(), []string{
		"What color is the sky?",
		"The sky is blue.",
		"Grass is green.",
	})
	if err != nil {
		t.Fatal(err)
	}
	related := dot(vecs[0], vecs[1])
	unrelated := dot(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("related similarity %f should exceed unrelated %f", related, unrelated)
	}
}

func TestHashEmbedder_emptyText(t *testing.T) {
	e := NewHashEmbedder(16)
	vecs, err := e.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs[0]) != 16 {
		t.Errorf("len = %d", len(vecs[0]))
	}
}

func TestHashEmbedder_canceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).Embed(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}

func TestEmbedOne(t *testing.T) {
	v, err := EmbedOne(context.Background(), NewHashEmbedder(8), "sky")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 8 {
		t.Errorf("len = %d", len(v))
	}
}
