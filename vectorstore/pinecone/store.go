package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
)

// Store implements vectorstore.Store over the Pinecone REST API.
type Store struct {
	config *Config
	client *client
	logger *slog.Logger

	mu   sync.Mutex
	host string
}

var _ vectorstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
			s.client.logger = logger
		}
		return nil
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) error {
		if c == nil {
			return fmt.Errorf("%w: http client required", core.ErrConfig)
		}
		s.client.http = c
		return nil
	}
}

// NewStore creates a store for the configured index. No request is made
// until the first operation.
func NewStore(config *Config, opts ...Option) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: pinecone config required", core.ErrConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "pinecone-store")
	s := &Store{
		config: config,
		client: &client{
			http:       &http.Client{Timeout: config.Timeout},
			apiKey:     config.APIKey,
			apiVersion: config.APIVersion,
			logger:     logger,
		},
		logger: logger,
	}
	if config.Host != "" {
		s.host = hostURL(config.Host)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type indexModel struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
}

type createIndexRequest struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Spec      indexSpec `json:"spec"`
}

type indexSpec struct {
	Serverless serverlessSpec `json:"serverless"`
}

type serverlessSpec struct {
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
}

// EnsureCollection lists indexes once and creates spec.Name only if it is
// absent. An existing index with a different dimension or metric is a
// configuration error. A concurrent creation answered with 409 counts as
// success.
func (s *Store) EnsureCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Name == "" {
		spec.Name = s.config.IndexName
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: collection dimension must be positive, got %d", core.ErrConfig, spec.Dimension)
	}
	if spec.Metric == "" {
		spec.Metric = s.config.Metric
	}
	if err := spec.Metric.Validate(); err != nil {
		return err
	}
	if spec.Cloud == "" {
		spec.Cloud = s.config.Cloud
	}
	if spec.Region == "" {
		spec.Region = s.config.Region
	}

	var list struct {
		Indexes []indexModel `json:"indexes"`
	}
	if err := s.client.call(ctx, http.MethodGet, s.config.ControlURL+"/indexes", nil, &list); err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	names := make([]string, 0, len(list.Indexes))
	for _, idx := range list.Indexes {
		names = append(names, idx.Name)
		if idx.Name == spec.Name {
			if idx.Dimension != spec.Dimension || (idx.Metric != "" && idx.Metric != string(spec.Metric)) {
				return fmt.Errorf("%w: index %q exists with dimension %d and metric %s",
					core.ErrConfig, idx.Name, idx.Dimension, idx.Metric)
			}
			s.logger.Info("using existing index", "index", spec.Name)
			if idx.Host != "" {
				s.setHost(idx.Host)
			}
			return nil
		}
	}
	s.logger.Info("index not found, creating", "index", spec.Name, "available", names)

	req := createIndexRequest{
		Name:      spec.Name,
		Dimension: spec.Dimension,
		Metric:    string(spec.Metric),
		Spec:      indexSpec{Serverless: serverlessSpec{Cloud: spec.Cloud, Region: spec.Region}},
	}
	var created indexModel
	err := s.client.call(ctx, http.MethodPost, s.config.ControlURL+"/indexes", req, &created)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		s.logger.Info("index created concurrently", "index", spec.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", spec.Name, err)
	}
	if created.Host != "" {
		s.setHost(created.Host)
	}
	s.logger.Info("created index", "index", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
	return nil
}

func (s *Store) setHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host == "" {
		s.host = hostURL(host)
	}
}

// dataURL resolves the index host on first use and joins path to it.
func (s *Store) dataURL(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()

	if host == "" {
		var desc indexModel
		if err := s.client.call(ctx, http.MethodGet, s.config.ControlURL+"/indexes/"+url.PathEscape(s.config.IndexName), nil, &desc); err != nil {
			return "", fmt.Errorf("failed to describe index %s: %w", s.config.IndexName, err)
		}
		if desc.Host == "" {
			return "", fmt.Errorf("%w: index %s has no host yet", core.ErrStoreUnavailable, s.config.IndexName)
		}
		s.setHost(desc.Host)
		s.mu.Lock()
		host = s.host
		s.mu.Unlock()
	}
	return host + path, nil
}

func (s *Store) post(ctx context.Context, path string, body, out any) error {
	u, err := s.dataURL(ctx, path)
	if err != nil {
		return err
	}
	return s.client.call(ctx, http.MethodPost, u, body, out)
}

type wireVector struct {
	ID       string        `json:"id"`
	Values   []float32     `json:"values"`
	Metadata core.Metadata `json:"metadata,omitempty"`
}

// Upsert writes vectors in sequential batches.
func (s *Store) Upsert(ctx context.Context, vectors []core.Vector, namespace string, batchSize int) (vectorstore.UpsertResult, error) {
	return vectorstore.UpsertBatches(ctx, vectors, batchSize, func(ctx context.Context, batch []core.Vector) error {
		wire := make([]wireVector, len(batch))
		for i, v := range batch {
			wire[i] = wireVector{ID: v.ID, Values: v.Values, Metadata: v.Metadata}
		}
		body := map[string]any{"vectors": wire, "namespace": namespace}
		var resp struct {
			UpsertedCount int `json:"upsertedCount"`
		}
		return s.post(ctx, "/vectors/upsert", body, &resp)
	})
}

// ListIDs returns one page of ids starting with prefix.
func (s *Store) ListIDs(ctx context.Context, prefix, namespace, pageToken string) (vectorstore.IDPage, error) {
	u, err := s.dataURL(ctx, "/vectors/list")
	if err != nil {
		return vectorstore.IDPage{}, err
	}
	q := url.Values{}
	q.Set("prefix", prefix)
	q.Set("namespace", namespace)
	if pageToken != "" {
		q.Set("paginationToken", pageToken)
	}

	var resp struct {
		Vectors []struct {
			ID string `json:"id"`
		} `json:"vectors"`
		Pagination *struct {
			Next string `json:"next"`
		} `json:"pagination"`
	}
	if err := s.client.call(ctx, http.MethodGet, u+"?"+q.Encode(), nil, &resp); err != nil {
		return vectorstore.IDPage{}, err
	}

	page := vectorstore.IDPage{IDs: make([]string, 0, len(resp.Vectors))}
	for _, v := range resp.Vectors {
		page.IDs = append(page.IDs, v.ID)
	}
	if resp.Pagination != nil {
		page.NextToken = resp.Pagination.Next
	}
	return page, nil
}

// fetchBatchSize bounds the ids per fetch request to keep URLs short.
const fetchBatchSize = 100

// Fetch returns the vectors of ids in the order given, skipping ids the
// index does not know.
func (s *Store) Fetch(ctx context.Context, ids []string, namespace string) ([]core.Vector, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	u, err := s.dataURL(ctx, "/vectors/fetch")
	if err != nil {
		return nil, err
	}

	vectors := make([]core.Vector, 0, len(ids))
	for batch := range slices.Chunk(ids, fetchBatchSize) {
		q := url.Values{}
		q.Set("namespace", namespace)
		for _, id := range batch {
			q.Add("ids", id)
		}

		var resp struct {
			Vectors map[string]struct {
				ID       string         `json:"id"`
				Values   []float32      `json:"values"`
				Metadata map[string]any `json:"metadata"`
			} `json:"vectors"`
		}
		if err := s.client.call(ctx, http.MethodGet, u+"?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, id := range batch {
			v, ok := resp.Vectors[id]
			if !ok {
				continue
			}
			vectors = append(vectors, core.Vector{
				ID:       id,
				Values:   v.Values,
				Metadata: s.decodeMetadata(id, v.Metadata),
			})
		}
	}
	return vectors, nil
}

// Delete removes ids from namespace.
func (s *Store) Delete(ctx context.Context, ids []string, namespace string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.post(ctx, "/vectors/delete", map[string]any{"ids": ids, "namespace": namespace}, nil)
}

// DeleteNamespace removes every vector in namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.post(ctx, "/vectors/delete", map[string]any{"deleteAll": true, "namespace": namespace}, nil)
}

// UpdateMetadata merges delta into the metadata of id.
func (s *Store) UpdateMetadata(ctx context.Context, id string, delta core.Metadata, namespace string) error {
	body := map[string]any{"id": id, "setMetadata": delta, "namespace": namespace}
	return s.post(ctx, "/vectors/update", body, nil)
}

// Query returns the TopK matches by descending score.
func (s *Store) Query(ctx context.Context, req vectorstore.QueryRequest) ([]core.Candidate, error) {
	if req.TopK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":          req.Vector,
		"topK":            req.TopK,
		"namespace":       req.Namespace,
		"includeMetadata": req.IncludeMetadata,
		"includeValues":   false,
	}
	if len(req.Filter) > 0 {
		if err := req.Filter.Validate(); err != nil {
			return nil, err
		}
		body["filter"] = req.Filter
	}

	var resp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.post(ctx, "/query", body, &resp); err != nil {
		return nil, err
	}

	candidates := make([]core.Candidate, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		candidates = append(candidates, core.Candidate{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: s.decodeMetadata(m.ID, m.Metadata),
		})
	}
	return candidates, nil
}

// decodeMetadata keeps scalar values and drops the rest, such as string
// lists written by other clients.
func (s *Store) decodeMetadata(id string, raw map[string]any) core.Metadata {
	if raw == nil {
		return nil
	}
	md := make(core.Metadata, len(raw))
	for k, v := range raw {
		value, err := core.ValueOf(v)
		if err != nil {
			s.logger.Debug("skipping metadata value", "id", id, "key", k, "err", err)
			continue
		}
		md[k] = value
	}
	return md
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.http.CloseIdleConnections()
	return nil
}
