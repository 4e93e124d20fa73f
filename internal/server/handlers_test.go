package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type scriptedLLM struct {
	reply string
	err   error
}

func (s *scriptedLLM) Complete(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

// failingIndex wraps an index and fails document deletes.
type failingIndex struct {
	vector.Index
}

func (f failingIndex) DeleteByDocument(context.Context, string) error {
	return errors.New("index unreachable")
}

type fixture struct {
	srv   *Server
	dir   string
	llm   *scriptedLLM
	index vector.Index
}

func newFixture(t *testing.T, wrap func(vector.Index) vector.Index) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Indexing.AllowedExtensions = []string{".pdf", ".txt"}
	config.ApplyDefaults(cfg)

	idx, err := vector.NewMemoryIndex(384, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.EnsureCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	var index vector.Index = idx
	if wrap != nil {
		index = wrap(idx)
	}

	store, err := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Indexing.AllowedExtensions)
	if err != nil {
		t.Fatal(err)
	}
	llm := &scriptedLLM{reply: "###FINAL_ANSWER###\nBlue.\n###METADATA###\nSOURCE_ID: 0\nQUOTE: \"The sky is blue.\""}
	engine := rag.NewEngine(embedding.NewHashEmbedder(384), index, extract.NewExtractor(), llm,
		rag.WithReplaceOnReindex(true))
	return &fixture{srv: NewServer(engine, store, cfg, zap.NewNop()), dir: cfg.Storage.UploadDir, llm: llm, index: index}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path string, v interface{}) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (f *fixture) upload(t *testing.T, name, content string) models.UploadResponse {
	t.Helper()
	w := f.do(t, uploadRequest(t, name, content))
	if w.Code != http.StatusOK {
		t.Fatalf("upload %s: status %d: %s", name, w.Code, w.Body.String())
	}
	var out models.UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestUpload_indexesAllowedFile(t *testing.T) {
	f := newFixture(t, nil)
	out := f.upload(t, "A.txt", "The sky is blue.\fGrass is green.")
	if out.Filename != "A.txt" || out.Chunks != 2 || out.Message != msgIndexed {
		t.Errorf("response = %+v", out)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "A.txt")); err != nil {
		t.Errorf("file not stored: %v", err)
	}
}

func TestUpload_unsupportedTypeIsStoredNotIndexed(t *testing.T) {
	f := newFixture(t, nil)
	out := f.upload(t, "image.png", "not really a png")
	if out.Chunks != 0 || out.Message != msgUnsupported {
		t.Errorf("response = %+v", out)
	}
	if n, _ := f.index.Count(context.Background()); n != 0 {
		t.Errorf("index has %d entries", n)
	}
}

func TestUpload_notPDFMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.config.Indexing.AllowedExtensions = []string{".pdf"}
	if msg := f.srv.unsupportedMessage(); msg != msgNotPDF {
		t.Errorf("message = %q", msg)
	}
}

func TestUpload_missingFile(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "text/plain")
	if w := f.do(t, req); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestListFiles_sorted(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "b.txt", "bee")
	f.upload(t, "a.txt", "ay")
	f.upload(t, "c.png", "img")

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/files", nil))
	var out models.FilesResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Files) != 2 || out.Files[0] != "a.txt" || out.Files[1] != "b.txt" {
		t.Errorf("files = %v", out.Files)
	}
}

func TestDeleteFile(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "my doc.txt", "The sky is blue.")

	w := f.do(t, httptest.NewRequest(http.MethodDelete, "/files/my%20doc.txt", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(f.dir, "my doc.txt")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if n, _ := f.index.Count(context.Background()); n != 0 {
		t.Errorf("index has %d entries after delete", n)
	}

	w = f.do(t, httptest.NewRequest(http.MethodDelete, "/files/my%20doc.txt", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestDeleteFile_encodedSlashUsesBaseName(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "a.txt", "The sky is blue.")

	w := f.do(t, httptest.NewRequest(http.MethodDelete, "/files/sub%2Fa.txt", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(f.dir, "a.txt")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if n, _ := f.index.Count(context.Background()); n != 0 {
		t.Errorf("index has %d entries after delete", n)
	}
}

func TestDeleteFile_indexFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, func(idx vector.Index) vector.Index { return failingIndex{idx} })
	if _, err := f.srv.store.Save("a.txt", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	w := f.do(t, httptest.NewRequest(http.MethodDelete, "/files/a.txt", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestChat(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "A.txt", "The sky is blue.\fGrass is green.")

	w := f.do(t, jsonRequest(http.MethodPost, "/chat", map[string]string{"message": "What color is the sky?"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var ans models.Answer
	if err := json.NewDecoder(w.Body).Decode(&ans); err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Blue." || len(ans.Sources) != 1 {
		t.Fatalf("answer = %+v", ans)
	}
	if ans.Sources[0].Filename != "A.txt" || ans.Sources[0].PageNumber != 1 || ans.Sources[0].Text != "The sky is blue." {
		t.Errorf("source = %+v", ans.Sources[0])
	}
}

func TestChat_emptyIndex(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, jsonRequest(http.MethodPost, "/chat", map[string]string{"question": "anything?"}))
	var ans models.Answer
	if err := json.NewDecoder(w.Body).Decode(&ans); err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Sorry, no relevant documents found." || ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("answer = %+v", ans)
	}
}

func TestChat_errors(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(t, jsonRequest(http.MethodPost, "/chat", map[string]string{"message": "  "})); w.Code != http.StatusBadRequest {
		t.Errorf("blank message status = %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{")))
	if w := f.do(t, req); w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", w.Code)
	}

	f.upload(t, "A.txt", "The sky is blue.")
	f.llm.err = errors.New("rate limited")
	if w := f.do(t, jsonRequest(http.MethodPost, "/chat", map[string]string{"message": "sky?"})); w.Code != http.StatusBadGateway {
		t.Errorf("model failure status = %d, want 502", w.Code)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "A.txt", "The sky is blue.\fGrass is green.\fTrees are tall.")

	w := f.do(t, jsonRequest(http.MethodPost, "/search", map[string]interface{}{"query": "sky", "top_k": 2}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var out models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Candidates) != 2 || out.Candidates[0].PageNumber != 1 {
		t.Errorf("candidates = %+v", out.Candidates)
	}
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "A.txt", "The sky is blue.")

	if w := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["documents"] != float64(1) || out["index_entries"] != float64(1) {
		t.Errorf("status = %v", out)
	}
}

func TestStatic(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, "A.txt", "The sky is blue.")
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/static/A.txt", nil))
	if w.Code != http.StatusOK || w.Body.String() != "The sky is blue." {
		t.Errorf("static = %d %q", w.Code, w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrLLM, http.StatusBadGateway},
		{models.ErrEmbedding, http.StatusServiceUnavailable},
		{models.ErrIndex, http.StatusServiceUnavailable},
		{models.ErrNotFound, http.StatusNotFound},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
