// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/retrieval"
	"github.com/poiesic/ragpipe/vectorstore"
)

// Pipeline is the subset of ragpipe.Pipeline the server calls.
type Pipeline interface {
	Upload(ctx context.Context, text string, opts ...ingestion.UploadOption) (string, error)
	Delete(ctx context.Context, docID string) (vectorstore.DeleteResult, error)
	UpdateMetadata(ctx context.Context, docID string, delta core.Metadata) (vectorstore.UpdateResult, error)
	Context(ctx context.Context, query string, opts ...retrieval.QueryOption) string
	SearchDocuments(ctx context.Context, query string, opts ...retrieval.QueryOption) retrieval.SearchResponse
}

// Server is the HTTP front door of the pipeline.
type Server struct {
	pipeline       Pipeline
	addr           string
	requestTimeout time.Duration
	maxAttempts    int
	retryDelay     time.Duration
	logger         *slog.Logger
	server         *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "server")
		}
	}
}

// WithRequestTimeout bounds the handling of each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithRetry retries failed writes up to maxAttempts times, doubling
// baseDelay between attempts.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Server) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
			s.retryDelay = baseDelay
		}
	}
}

// New creates a server for pipeline listening on addr.
func New(pipeline Pipeline, addr string, opts ...Option) *Server {
	s := &Server{
		pipeline:       pipeline,
		addr:           addr,
		requestTimeout: 60 * time.Second,
		maxAttempts:    1,
		logger:         slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router with all routes and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Post("/rag_query", s.handleRAGQuery)
	r.Post("/search", s.handleSearch)
	r.Post("/context", s.handleContext)
	r.Post("/documents", s.handleUpload)
	r.Delete("/documents/{id}", s.handleDelete)
	r.Patch("/documents/{id}/metadata", s.handleUpdateMetadata)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops. It returns
// http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. A server stopped before Start
// never begins listening.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
