package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

type fakeCompleter struct {
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return f.reply, f.err
}

func TestSynthesizer_noCandidates(t *testing.T) {
	llm := &fakeCompleter{}
	s := NewSynthesizer(llm)
	ans, err := s.Answer(context.Background(), "anything?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != NoResultsMessage {
		t.Errorf("Answer = %q", ans.Answer)
	}
	if ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty non-nil", ans.Sources)
	}
	if llm.calls != 0 {
		t.Errorf("model called %d times", llm.calls)
	}
}

func TestSynthesizer_withoutCompleter(t *testing.T) {
	s := NewSynthesizer(nil)
	ans, err := s.Answer(context.Background(), "anything?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != NoResultsMessage || len(ans.Sources) != 0 {
		t.Errorf("got %+v", ans)
	}
	if _, err := s.Answer(context.Background(), "anything?", twoCandidates()); !errors.Is(err, models.ErrLLM) {
		t.Errorf("error = %v, want ErrLLM", err)
	}
}

func TestSynthesizer_wellFormed(t *testing.T) {
	llm := &fakeCompleter{reply: "###FINAL_ANSWER###\nBlue.\n###METADATA###\nSOURCE_ID: 0\nQUOTE: \"The sky is blue.\""}
	s := NewSynthesizer(llm)
	ans, err := s.Answer(context.Background(), "What color is the sky?", twoCandidates())
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Blue." {
		t.Errorf("Answer = %q", ans.Answer)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Filename != "A.pdf" || ans.Sources[0].PageNumber != 1 || ans.Sources[0].Text != "The sky is blue." {
		t.Errorf("Sources = %+v", ans.Sources)
	}
	if llm.system != SystemPrompt {
		t.Error("system prompt not sent")
	}
	if !strings.Contains(llm.user, "--- [ID: 1] ---\nFile: A.pdf (Pg 2)\nText: Grass is green.") {
		t.Errorf("user prompt missing candidate block:\n%s", llm.user)
	}
	if !strings.HasSuffix(llm.user, "Question: \nWhat color is the sky?\n") {
		t.Errorf("user prompt missing question:\n%s", llm.user)
	}
}

func TestSynthesizer_outOfRangeIndex(t *testing.T) {
	llm := &fakeCompleter{reply: "###FINAL_ANSWER###\nBlue.\n###METADATA###\nSOURCE_ID: 9\nQUOTE: \"x\""}
	ans, err := NewSynthesizer(llm).Answer(context.Background(), "q", twoCandidates())
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Blue." || len(ans.Sources) != 0 {
		t.Errorf("got %+v", ans)
	}
}

func TestSynthesizer_modelError(t *testing.T) {
	boom := errors.New("connection refused")
	llm := &fakeCompleter{err: boom}
	_, err := NewSynthesizer(llm).Answer(context.Background(), "q", twoCandidates())
	if !errors.Is(err, models.ErrLLM) {
		t.Errorf("error = %v, want ErrLLM", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want cause preserved", err)
	}
}

func TestBuildPrompt_flattensNewlines(t *testing.T) {
	p := BuildPrompt("q", []models.Source{{Filename: "f.pdf", PageNumber: 3, Text: "line one\nline two\n"}})
	if !strings.Contains(p, "Text: line one line two\n") {
		t.Errorf("prompt = %q", p)
	}
	if !strings.HasPrefix(p, "Candidates:\n--- [ID: 0] ---\n") {
		t.Errorf("prompt = %q", p)
	}
}
