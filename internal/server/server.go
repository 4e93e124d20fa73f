// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Pipeline is the question answering pipeline the handlers drive.
type Pipeline interface {
	IndexFile(ctx context.Context, path, name string) (int, error)
	DeleteDocument(ctx context.Context, sourceDocument string) error
	AnswerQuestion(ctx context.Context, question string) (*models.Answer, error)
	Search(ctx context.Context, query string, topK int) ([]models.Source, error)
	Count(ctx context.Context) (int, error)
}

// Server is the HTTP server for the kotae API.
type Server struct {
	pipeline Pipeline
	store    *storage.FileStore
	config   *config.Config
	logger   *zap.Logger
	router   chi.Router
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(pipeline Pipeline, store *storage.FileStore, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		store:    store,
		config:   cfg,
		logger:   utils.LoggerOrNop(logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/upload", s.handleUpload)
	r.Get("/files", s.handleListFiles)
	r.Delete("/files/{filename}", s.handleDeleteFile)
	r.Post("/chat", s.handleChat)
	r.Post("/search", s.handleSearch)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	if dir := s.config.Server.StaticDir; dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}
	return r
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
