package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/ragpipe"
	"github.com/poiesic/ragpipe/ai/mock"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/retrieval"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/poiesic/ragpipe/vectorstore/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	uploadErrs  []error
	uploadCalls int
	search      retrieval.SearchResponse
	contextText string
	deleteErr   error
	lastQuery   string
	lastDelta   core.Metadata
}

func (f *fakePipeline) Upload(ctx context.Context, text string, opts ...ingestion.UploadOption) (string, error) {
	f.uploadCalls++
	var err error
	if len(f.uploadErrs) > 0 {
		err, f.uploadErrs = f.uploadErrs[0], f.uploadErrs[1:]
	}
	return "", err
}

func (f *fakePipeline) Delete(ctx context.Context, docID string) (vectorstore.DeleteResult, error) {
	if f.deleteErr != nil {
		return vectorstore.DeleteResult{}, f.deleteErr
	}
	return vectorstore.DeleteResult{Matched: 2, Deleted: 2}, nil
}

func (f *fakePipeline) UpdateMetadata(ctx context.Context, docID string, delta core.Metadata) (vectorstore.UpdateResult, error) {
	f.lastDelta = delta
	return vectorstore.UpdateResult{Matched: 2, Updated: 2}, nil
}

func (f *fakePipeline) Context(ctx context.Context, query string, opts ...retrieval.QueryOption) string {
	f.lastQuery = query
	return f.contextText
}

func (f *fakePipeline) SearchDocuments(ctx context.Context, query string, opts ...retrieval.QueryOption) retrieval.SearchResponse {
	f.lastQuery = query
	resp := f.search
	resp.Query = query
	return resp
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		text        string
		title       string
		description string
	}{
		{"Title: Soil Health\nRotate crops yearly.", "Soil Health", "Rotate crops yearly."},
		{"  title:Irrigation  \n\n Drip lines save water. \n", "Irrigation", "Drip lines save water."},
		{"No heading here.\nSecond line.", "Untitled", "No heading here.\nSecond line."},
		{"TITLE: Only", "Only", ""},
	}
	for _, tt := range tests {
		title, description := splitTitle(tt.text)
		assert.Equal(t, tt.title, title, tt.text)
		assert.Equal(t, tt.description, description, tt.text)
	}
}

func TestHandleRAGQuery(t *testing.T) {
	fake := &fakePipeline{search: retrieval.SearchResponse{Results: []retrieval.SearchResult{
		{Rank: 1, Text: "Title: Composting\nTurn the pile weekly."},
		{Rank: 2, Text: "Mulch keeps moisture in."},
	}}}
	h := New(fake, ":0").Handler()

	t.Run("formats results", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/rag_query", `{"query":"how to compost"}`)
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[[]ragResult](t, w)
		assert.Equal(t, []ragResult{
			{Title: "Composting", Description: "Turn the pile weekly."},
			{Title: "Untitled", Description: "Mulch keeps moisture in."},
		}, got)
		assert.Equal(t, "how to compost", fake.lastQuery)
	})

	t.Run("missing query", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/rag_query", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Missing 'query' in request body", decode[map[string]string](t, w)["error"])
	})

	t.Run("not json", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/rag_query", `query=compost`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		failing := &fakePipeline{search: retrieval.SearchResponse{Error: "vector store unavailable"}}
		w := do(t, New(failing, ":0").Handler(), http.MethodPost, "/rag_query", `{"query":"q"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestHandleContextAndSearch(t *testing.T) {
	fake := &fakePipeline{
		contextText: "[Document 1] (Source: faq, Score: 0.900)\ntext\n",
		search:      retrieval.SearchResponse{TotalResults: 0, Results: []retrieval.SearchResult{}},
	}
	h := New(fake, ":0").Handler()

	w := do(t, h, http.MethodPost, "/context", `{"query":"q","max_chars":500}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fake.contextText, decode[map[string]string](t, w)["context"])

	w = do(t, h, http.MethodPost, "/search", `{"query":"q","top_k":4,"filter":{"source":"faq"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[retrieval.SearchResponse](t, w)
	assert.Equal(t, "q", resp.Query)

	w = do(t, h, http.MethodPost, "/search", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUpload(t *testing.T) {
	t.Run("created with generated id", func(t *testing.T) {
		fake := &fakePipeline{}
		w := do(t, New(fake, ":0").Handler(), http.MethodPost, "/documents", `{"text":"hello","metadata":{"source":"api"}}`)
		require.Equal(t, http.StatusCreated, w.Code)
		body := decode[map[string]string](t, w)
		assert.NoError(t, core.ValidateDocumentID(body["doc_id"]))
		assert.Equal(t, "indexed", body["status"])
	})

	t.Run("nested metadata is rejected", func(t *testing.T) {
		fake := &fakePipeline{}
		w := do(t, New(fake, ":0").Handler(), http.MethodPost, "/documents", `{"text":"hello","metadata":{"tags":["a"]}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, fake.uploadCalls)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		fake := &fakePipeline{uploadErrs: []error{fmt.Errorf("%w: reset", core.ErrStoreUnavailable)}}
		h := New(fake, ":0", WithRetry(3, time.Millisecond)).Handler()
		w := do(t, h, http.MethodPost, "/documents", `{"text":"hello","doc_id":"doc1"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 2, fake.uploadCalls)
		assert.Equal(t, "doc1", decode[map[string]string](t, w)["doc_id"])
	})

	t.Run("client error is not retried", func(t *testing.T) {
		fake := &fakePipeline{uploadErrs: []error{ingestion.ErrEmptyDocument}}
		h := New(fake, ":0", WithRetry(3, time.Millisecond)).Handler()
		w := do(t, h, http.MethodPost, "/documents", `{"text":"  "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 1, fake.uploadCalls)
	})
}

func TestHandleDeleteAndUpdate(t *testing.T) {
	fake := &fakePipeline{}
	h := New(fake, ":0").Handler()

	w := do(t, h, http.MethodDelete, "/documents/doc1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, w)["deleted"])

	w = do(t, h, http.MethodPatch, "/documents/doc1/metadata", `{"metadata":{"reviewed":true,"year":2024}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, core.Metadata{"reviewed": core.Bool(true), "year": core.Int(2024)}, fake.lastDelta)

	fake.deleteErr = fmt.Errorf("%w: doc_1", core.ErrInvalidDocumentID)
	w = do(t, h, http.MethodDelete, "/documents/doc_1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fake.deleteErr = core.ErrStoreUnavailable
	w = do(t, h, http.MethodDelete, "/documents/doc1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	w := do(t, New(&fakePipeline{}, ":0").Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestServer_WithPipeline(t *testing.T) {
	store, err := badger.NewMemoryStore(mock.DefaultDimension)
	require.NoError(t, err)
	p, err := ragpipe.New(mock.NewMockProviderWithServices(mock.NewMockEmbedder(), nil), store, ragpipe.WithNamespace("web"))
	require.NoError(t, err)
	defer p.Close()

	srv := httptest.NewServer(New(p, ":0").Handler())
	defer srv.Close()

	post := func(path, body string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		return resp
	}

	resp := post("/documents", `{"text":"Title: Seeds\nStore seeds somewhere dry.","doc_id":"seeds"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post("/rag_query", `{"query":"seed storage"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results []ragResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, ragResult{Title: "Seeds", Description: "Store seeds somewhere dry."}, results[0])
}
