package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	user  string
}

func (f *fakeLLM) Complete(_ context.Context, _, user string) (string, error) {
	f.calls++
	f.user = user
	return f.reply, f.err
}

func newTestEngine(t *testing.T, completer llm.Completer, opts ...Option) *Engine {
	t.Helper()
	idx, err := vector.NewMemoryIndex(384, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.EnsureCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return NewEngine(embedding.NewHashEmbedder(384), idx, nil, completer, opts...)
}

func skyChunks() []models.Chunk {
	return []models.Chunk{
		{SourceDocument: "A.pdf", PageNumber: 1, Text: "The sky is blue."},
		{SourceDocument: "A.pdf", PageNumber: 2, Text: "Grass is green."},
	}
}

func TestAnswerQuestion_emptyIndex(t *testing.T) {
	llm := &fakeLLM{}
	e := newTestEngine(t, llm)
	ans, err := e.AnswerQuestion(context.Background(), "What color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != answer.NoResultsMessage || len(ans.Sources) != 0 {
		t.Errorf("got %+v", ans)
	}
	if llm.calls != 0 {
		t.Errorf("model called %d times", llm.calls)
	}
}

func TestAnswerQuestion_skyScenario(t *testing.T) {
	llm := &fakeLLM{reply: "###FINAL_ANSWER###\nBlue.\n###METADATA###\nSOURCE_ID: 0\nQUOTE: \"The sky is blue.\""}
	e := newTestEngine(t, llm)
	ctx := context.Background()
	n, err := e.IndexDocument(ctx, skyChunks())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("IndexDocument = %d, want 2", n)
	}

	ans, err := e.AnswerQuestion(ctx, "What color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Blue." {
		t.Errorf("Answer = %q", ans.Answer)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("Sources = %+v", ans.Sources)
	}
	s := ans.Sources[0]
	if s.Filename != "A.pdf" || s.PageNumber != 1 || s.Text != "The sky is blue." {
		t.Errorf("source = %+v", s)
	}
	// best candidate is listed first in the prompt
	if !strings.Contains(llm.user, "--- [ID: 0] ---\nFile: A.pdf (Pg 1)\nText: The sky is blue.") {
		t.Errorf("prompt:\n%s", llm.user)
	}
}

func TestAnswerQuestion_sourcesAtMostOne(t *testing.T) {
	replies := []string{
		"no markers at all",
		"###FINAL_ANSWER###\nx",
		"###FINAL_ANSWER###\nx\n###METADATA###\nSOURCE_ID: 9",
		"###FINAL_ANSWER###\nx\n###METADATA###\nSOURCE_ID: 1\nQUOTE: 'Grass is green.'",
	}
	for _, reply := range replies {
		llm := &fakeLLM{reply: reply}
		e := newTestEngine(t, llm)
		if _, err := e.IndexDocument(context.Background(), skyChunks()); err != nil {
			t.Fatal(err)
		}
		ans, err := e.AnswerQuestion(context.Background(), "sky?")
		if err != nil {
			t.Fatal(err)
		}
		if len(ans.Sources) > 1 {
			t.Errorf("reply %q gave %d sources", reply, len(ans.Sources))
		}
	}
}

func TestAnswerQuestion_modelFailure(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{err: errors.New("timeout")})
	if _, err := e.IndexDocument(context.Background(), skyChunks()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AnswerQuestion(context.Background(), "sky?"); !errors.Is(err, models.ErrLLM) {
		t.Errorf("error = %v, want ErrLLM", err)
	}
}

func TestAnswerQuestion_invalidInput(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{})
	if _, err := e.AnswerQuestion(context.Background(), "   "); err == nil {
		t.Error("expected error for blank question")
	}
}

func TestAnswerQuestion_withoutModel(t *testing.T) {
	e := newTestEngine(t, nil)
	ans, err := e.AnswerQuestion(context.Background(), "What color is the sky?")
	if err != nil {
		t.Fatalf("empty index: %v", err)
	}
	if ans.Answer != answer.NoResultsMessage || ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("empty index: got %+v", ans)
	}

	if _, err := e.IndexDocument(context.Background(), skyChunks()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AnswerQuestion(context.Background(), "sky?"); !errors.Is(err, models.ErrLLM) {
		t.Errorf("error = %v, want ErrLLM", err)
	}
}

func TestDeleteDocument_removesCandidates(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{})
	ctx := context.Background()
	if _, err := e.IndexDocument(ctx, skyChunks()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.IndexDocument(ctx, []models.Chunk{{SourceDocument: "B.pdf", PageNumber: 1, Text: "The sea is blue too."}}); err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteDocument(ctx, "A.pdf"); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := e.DeleteDocument(ctx, "A.pdf"); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"sky", "grass", "blue", "green"} {
		got, err := e.Search(ctx, q, 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range got {
			if c.Filename == "A.pdf" {
				t.Errorf("query %q returned deleted document", q)
			}
		}
	}
}

func TestIndexDocument_idempotent(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := e.IndexDocument(ctx, skyChunks()); err != nil {
			t.Fatal(err)
		}
	}
	n, err := e.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count = %d after re-index, want 2", n)
	}
}

func TestSearch_respectsTopK(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{}, WithTopK(1))
	ctx := context.Background()
	if _, err := e.IndexDocument(ctx, skyChunks()); err != nil {
		t.Fatal(err)
	}
	if e.TopK() != 1 {
		t.Errorf("TopK = %d", e.TopK())
	}
	got, err := e.Search(ctx, "sky", e.TopK())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}
