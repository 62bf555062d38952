package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/retrieval"
	"github.com/poiesic/ragpipe/retry"
	"github.com/poiesic/ragpipe/vectorstore"
)

type queryRequest struct {
	Query    string         `json:"query"`
	TopK     int            `json:"top_k,omitempty"`
	TopN     int            `json:"top_n,omitempty"`
	MaxChars int            `json:"max_chars,omitempty"`
	Rerank   *bool          `json:"rerank,omitempty"`
	Filter   map[string]any `json:"filter,omitempty"`
}

func (q queryRequest) options() []retrieval.QueryOption {
	var opts []retrieval.QueryOption
	if q.TopK > 0 {
		opts = append(opts, retrieval.WithTopK(q.TopK))
	}
	if q.TopN > 0 {
		opts = append(opts, retrieval.WithTopN(q.TopN))
	}
	if q.MaxChars > 0 {
		opts = append(opts, retrieval.WithMaxChars(q.MaxChars))
	}
	if q.Rerank != nil {
		opts = append(opts, retrieval.WithRerank(*q.Rerank))
	}
	if len(q.Filter) > 0 {
		opts = append(opts, retrieval.WithFilter(vectorstore.Filter(q.Filter)))
	}
	return opts
}

type ragResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// splitTitle treats a first line starting with "title:" as the title.
func splitTitle(text string) (title, description string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.ToLower(lines[0]), "title:") {
		return strings.TrimSpace(lines[0][len("title:"):]), strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return "Untitled", text
}

func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "Missing 'query' in request body")
		return
	}

	resp := s.pipeline.SearchDocuments(r.Context(), req.Query, req.options()...)
	if resp.Error != "" {
		s.respondError(w, http.StatusBadGateway, resp.Error)
		return
	}

	formatted := make([]ragResult, 0, len(resp.Results))
	for _, result := range resp.Results {
		title, description := splitTitle(result.Text)
		formatted = append(formatted, ragResult{Title: title, Description: description})
	}
	s.respondJSON(w, http.StatusOK, formatted)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", "query", req.Query, "top_k", req.TopK, "top_n", req.TopN)
	s.respondJSON(w, http.StatusOK, s.pipeline.SearchDocuments(r.Context(), req.Query, req.options()...))
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	text := s.pipeline.Context(r.Context(), req.Query, req.options()...)
	s.respondJSON(w, http.StatusOK, map[string]string{"query": req.Query, "context": text})
}

type uploadRequest struct {
	Text     string         `json:"text"`
	DocID    string         `json:"doc_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Replace  bool           `json:"replace,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	md, err := core.MetadataFromMap(req.Metadata)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Fix the id before retrying so a retry cannot scatter the document.
	docID := req.DocID
	if docID == "" {
		docID = core.NewDocumentID()
	}
	opts := []ingestion.UploadOption{ingestion.WithDocumentID(docID), ingestion.WithMetadata(md)}
	if req.Replace {
		opts = append(opts, ingestion.WithReplace())
	}

	s.logger.Debug("upload request", "doc_id", docID, "chars", len(req.Text))
	err = s.withRetry(r.Context(), func(ctx context.Context) error {
		_, err := s.pipeline.Upload(ctx, req.Text, opts...)
		return err
	})
	if err != nil {
		s.logger.Error("upload failed", "doc_id", docID, "err", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"doc_id": docID, "status": "indexed"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	s.logger.Debug("delete request", "doc_id", docID)

	var result vectorstore.DeleteResult
	err := s.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = s.pipeline.Delete(ctx, docID)
		return err
	})
	if err != nil {
		s.logger.Error("delete failed", "doc_id", docID, "err", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"doc_id":  docID,
		"matched": result.Matched,
		"deleted": result.Deleted,
	})
}

type metadataRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	delta, err := core.MetadataFromMap(req.Metadata)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result vectorstore.UpdateResult
	err = s.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = s.pipeline.UpdateMetadata(ctx, docID, delta)
		return err
	})
	if err != nil {
		s.logger.Error("metadata update failed", "doc_id", docID, "err", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"doc_id":  docID,
		"matched": result.Matched,
		"updated": result.Updated,
		"failed":  result.Failed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRetry runs op with the configured backoff. Client errors are never retried.
func (s *Server) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	return retry.WithBackoff(ctx, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && statusFor(err) == http.StatusBadRequest {
			return retry.Permanent(err)
		}
		return err
	}, s.maxAttempts, s.retryDelay)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidDocumentID),
		errors.Is(err, core.ErrInvalidMetadata),
		errors.Is(err, ingestion.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrTransport), errors.Is(err, core.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
