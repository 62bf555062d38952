// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ragpipe

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/chunker"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/reembed"
	"github.com/poiesic/ragpipe/retrieval"
	"github.com/poiesic/ragpipe/vectorstore"
)

var (
	// ErrProviderRequired is returned when an AI provider is not provided.
	ErrProviderRequired = errors.New("AI provider required")

	// ErrStoreRequired is returned when a vector store is not provided.
	ErrStoreRequired = errors.New("vector store required")
)

// Pipeline is the caller-facing entry point. It owns an AI provider and a
// vector store and wires them into an uploader and a retriever that share
// one namespace.
type Pipeline struct {
	provider  ai.Provider
	store     vectorstore.Store
	uploader  *ingestion.Uploader
	retriever *retrieval.Retriever
	spec      vectorstore.CollectionSpec
	progress  io.Writer
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	namespace      string
	spec           vectorstore.CollectionSpec
	chunkSize      int
	chunkOverlap   int
	batchSize      int
	queryCacheSize int
	progress       io.Writer
	logger         *slog.Logger
}

// WithNamespace sets the namespace shared by uploads and queries.
func WithNamespace(namespace string) Option {
	return func(o *pipelineOptions) {
		o.namespace = namespace
	}
}

// WithCollectionSpec describes the index EnsureIndex creates. A zero
// dimension is taken from the embedder.
func WithCollectionSpec(spec vectorstore.CollectionSpec) Option {
	return func(o *pipelineOptions) {
		o.spec = spec
	}
}

// WithChunking sets the chunk window size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(o *pipelineOptions) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// WithBatchSize sets the number of vectors per upsert request.
func WithBatchSize(size int) Option {
	return func(o *pipelineOptions) {
		o.batchSize = size
	}
}

// WithQueryCacheSize keeps up to size query embeddings in memory. Zero
// disables the cache.
func WithQueryCacheSize(size int) Option {
	return func(o *pipelineOptions) {
		o.queryCacheSize = size
	}
}

// WithProgress reports directory upload and reembed progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *pipelineOptions) {
		o.progress = w
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

// New assembles a pipeline around provider and store and takes ownership
// of both: Close releases them. On error neither is closed.
func New(provider ai.Provider, store vectorstore.Store, opts ...Option) (*Pipeline, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	options := &pipelineOptions{
		chunkSize:    chunker.DefaultChunkSize,
		chunkOverlap: chunker.DefaultOverlap,
		batchSize:    vectorstore.DefaultBatchSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	embedder := provider.Embedder()
	if embedder == nil {
		return nil, ErrProviderRequired
	}
	queryEmbedder := ai.NewCachingEmbedder(embedder, options.queryCacheSize)

	c, err := chunker.New(chunker.WithChunkSize(options.chunkSize), chunker.WithOverlap(options.chunkOverlap))
	if err != nil {
		return nil, err
	}

	uploaderOpts := []ingestion.Option{
		ingestion.WithChunker(c),
		ingestion.WithNamespace(options.namespace),
		ingestion.WithBatchSize(options.batchSize),
		ingestion.WithLogger(options.logger),
	}
	if options.progress != nil {
		uploaderOpts = append(uploaderOpts, ingestion.WithProgress(options.progress))
	}
	uploader, err := ingestion.NewUploader(embedder, store, uploaderOpts...)
	if err != nil {
		return nil, err
	}

	retrieverOpts := []retrieval.Option{
		retrieval.WithDefaultNamespace(options.namespace),
		retrieval.WithLogger(options.logger),
	}
	if reranker := provider.Reranker(); reranker != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithReranker(reranker))
	}
	retriever, err := retrieval.NewRetriever(queryEmbedder, store, retrieverOpts...)
	if err != nil {
		uploader.Close()
		return nil, err
	}

	spec := options.spec
	if spec.Dimension == 0 {
		spec.Dimension = embedder.Dimension()
	}
	if spec.Metric == "" {
		spec.Metric = vectorstore.MetricDotProduct
	}

	return &Pipeline{
		provider:  provider,
		store:     store,
		uploader:  uploader,
		retriever: retriever,
		spec:      spec,
		progress:  options.progress,
		logger:    options.logger.With("component", "pipeline"),
	}, nil
}

// Close releases the uploader pool, the provider and the store. Every
// resource is closed even if an earlier one fails.
func (p *Pipeline) Close() error {
	p.uploader.Close()

	var errs []error
	if err := p.provider.Close(); err != nil {
		p.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := p.store.Close(); err != nil {
		p.logger.Error("error closing vector store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Namespace returns the namespace shared by uploads and queries.
func (p *Pipeline) Namespace() string {
	return p.uploader.Namespace()
}

// EnsureIndex creates the backing index if it does not exist yet.
func (p *Pipeline) EnsureIndex(ctx context.Context) error {
	p.logger.Info("ensuring index", "name", p.spec.Name, "dimension", p.spec.Dimension, "metric", p.spec.Metric)
	return p.store.EnsureCollection(ctx, p.spec)
}

// Upload chunks, embeds and stores text, returning the document id.
func (p *Pipeline) Upload(ctx context.Context, text string, opts ...ingestion.UploadOption) (string, error) {
	return p.uploader.Upload(ctx, text, opts...)
}

// UploadFile uploads the contents of path.
func (p *Pipeline) UploadFile(ctx context.Context, path string, opts ...ingestion.UploadOption) (string, error) {
	return p.uploader.UploadFile(ctx, path, opts...)
}

// UploadDirectory uploads every matching file under dir.
func (p *Pipeline) UploadDirectory(ctx context.Context, dir string, exts ...string) ([]ingestion.FileResult, error) {
	return p.uploader.UploadDirectory(ctx, dir, exts...)
}

// Delete removes every vector of docID.
func (p *Pipeline) Delete(ctx context.Context, docID string) (vectorstore.DeleteResult, error) {
	return p.uploader.Delete(ctx, docID)
}

// UpdateMetadata merges delta into every vector of docID.
func (p *Pipeline) UpdateMetadata(ctx context.Context, docID string, delta core.Metadata) (vectorstore.UpdateResult, error) {
	return p.uploader.UpdateMetadata(ctx, docID, delta)
}

// DeleteAll removes every vector in the pipeline's namespace.
func (p *Pipeline) DeleteAll(ctx context.Context) error {
	return p.uploader.DeleteAll(ctx)
}

// Retrieve returns the best candidates for query.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts ...retrieval.QueryOption) (retrieval.RetrieveResult, error) {
	return p.retriever.Retrieve(ctx, query, opts...)
}

// Context returns prompt-ready text for query. It never fails.
func (p *Pipeline) Context(ctx context.Context, query string, opts ...retrieval.QueryOption) string {
	return p.retriever.Context(ctx, query, opts...)
}

// SearchDocuments returns a tool-shaped retrieval result. It never fails.
func (p *Pipeline) SearchDocuments(ctx context.Context, query string, opts ...retrieval.QueryOption) retrieval.SearchResponse {
	return p.retriever.SearchDocuments(ctx, query, opts...)
}

// Reembed re-embeds the stored chunks of the namespace with the pipeline's
// embedder. A nil config uses reembed.DefaultConfig.
func (p *Pipeline) Reembed(ctx context.Context, config *reembed.Config) (reembed.Result, error) {
	r, err := reembed.NewReembedder(p.store, p.provider.Embedder(), p.Namespace(), config, p.progress)
	if err != nil {
		return reembed.Result{}, err
	}
	return r.Run(ctx)
}
