package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	msgIndexed     = "File uploaded and indexed successfully"
	msgNotPDF      = "Not a PDF"
	msgUnsupported = "File type not indexed"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name, err := storage.CleanName(header.Filename)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	replacing := s.store.Exists(name)
	path, err := s.store.Save(name, file)
	if err != nil {
		s.logger.Error("upload: save failed", zap.String("filename", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !s.store.Allowed(name) {
		s.logger.Debug("upload: stored without indexing", zap.String("filename", name))
		s.respondJSON(w, http.StatusOK, models.UploadResponse{Filename: name, Chunks: 0, Message: s.unsupportedMessage()})
		return
	}

	n, err := s.pipeline.IndexFile(r.Context(), path, name)
	if err != nil {
		s.logger.Error("upload: indexing failed", zap.String("filename", name), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("document indexed", zap.String("filename", name), zap.Int("chunks", n), zap.Bool("replaced", replacing))
	s.respondJSON(w, http.StatusOK, models.UploadResponse{Filename: name, Chunks: n, Message: msgIndexed})
}

func (s *Server) unsupportedMessage() string {
	exts := s.config.Indexing.AllowedExtensions
	if len(exts) == 1 && strings.EqualFold(strings.TrimPrefix(exts[0], "."), "pdf") {
		return msgNotPDF
	}
	return msgUnsupported
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.List()
	if err != nil {
		s.logger.Error("list files failed", zap.Error(err))
		s.respondJSON(w, http.StatusOK, models.FilesResponse{Files: []string{}})
		return
	}
	s.respondJSON(w, http.StatusOK, models.FilesResponse{Files: files})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "filename")
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		unescaped = raw
	}
	name, err := storage.CleanName(unescaped)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("delete file request", zap.String("filename", name))

	fileErr := s.store.Delete(name)
	if fileErr != nil && !errors.Is(fileErr, models.ErrNotFound) {
		s.logger.Error("delete file failed", zap.String("filename", name), zap.Error(fileErr))
		s.respondError(w, http.StatusInternalServerError, fileErr.Error())
		return
	}
	// index cleanup is best-effort
	if err := s.pipeline.DeleteDocument(r.Context(), name); err != nil {
		s.logger.Warn("failed to clear document from index", zap.String("filename", name), zap.Error(err))
	}
	if fileErr != nil {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Deleted " + name})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("chat request", zap.String("message", req.Message))
	ans, err := s.pipeline.AnswerQuestion(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := time.Now()
	candidates, err := s.pipeline.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Query:      req.Query,
		Candidates: candidates,
		QueryTime:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := s.pipeline.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count entries failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	files, err := s.store.List()
	if err != nil {
		s.logger.Error("status: list files failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":     len(files),
		"index_entries": entries,
		"config": map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"vector_type":          s.config.Vector.Type,
			"collection":           s.config.Vector.Collection,
			"llm_model":            s.config.LLM.Model,
			"top_k":                s.config.Retrieval.TopK,
			"upload_dir":           s.config.Storage.UploadDir,
		},
	}
	if n, err := storage.DiskUsageBytes(s.config.Storage.UploadDir, s.config.Storage.DataDir); err == nil {
		resp["disk_usage_bytes"] = n
	}
	if n, err := s.store.Usage(); err == nil {
		resp["upload_bytes"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps pipeline failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrLLM):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrEmbedding), errors.Is(err, models.ErrIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
