package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/chunker"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/telemetry"
	"github.com/poiesic/ragpipe/vectorstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metadata keys stamped on every chunk by the uploader.
const (
	KeyEmbeddingModel      = "embedding_model"
	KeyEmbeddingDimensions = "embedding_dimensions"
	KeyUploadedAt          = "uploaded_at"
	KeyContentHash         = "content_hash"
)

// Uploader chunks, embeds and stores documents.
type Uploader struct {
	embedder  ai.Embedder
	store     vectorstore.Store
	chunker   *chunker.Chunker
	namespace string
	batchSize int
	poolSize  int
	poolMu    sync.Mutex
	pool      *ants.Pool
	progress  io.Writer
	metrics   *telemetry.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) error {
		if logger == nil {
			logger = slog.Default()
		}
		u.logger = logger.With("component", "ingestion")
		return nil
	}
}

// WithChunker replaces the default 1000/200 chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(u *Uploader) error {
		if c == nil {
			return fmt.Errorf("%w: chunker is nil", core.ErrConfig)
		}
		u.chunker = c
		return nil
	}
}

// WithNamespace sets the namespace documents are written to.
func WithNamespace(namespace string) Option {
	return func(u *Uploader) error {
		u.namespace = namespace
		return nil
	}
}

// WithBatchSize sets the number of vectors per upsert request.
func WithBatchSize(size int) Option {
	return func(u *Uploader) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrConfig, size)
		}
		u.batchSize = size
		return nil
	}
}

// WithPoolSize sets the number of files UploadDirectory processes at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(u *Uploader) error {
		u.poolSize = max(size, 1)
		return nil
	}
}

// WithProgress reports UploadDirectory progress to w.
func WithProgress(w io.Writer) Option {
	return func(u *Uploader) error {
		u.progress = w
		return nil
	}
}

// WithMetrics sets the instruments used to record uploads.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(u *Uploader) error {
		if m != nil {
			u.metrics = m
		}
		return nil
	}
}

// NewUploader creates an uploader writing embeddings from embedder into store.
func NewUploader(embedder ai.Embedder, store vectorstore.Store, opts ...Option) (*Uploader, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	defaultChunker, err := chunker.New()
	if err != nil {
		return nil, err
	}

	u := &Uploader{
		embedder:  embedder,
		store:     store,
		chunker:   defaultChunker,
		batchSize: vectorstore.DefaultBatchSize,
		poolSize:  max(runtime.NumCPU()/2, 1),
		metrics:   telemetry.Default(),
		now:       time.Now,
		logger:    slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}

	if _, err := u.workers(); err != nil {
		return nil, err
	}
	return u, nil
}

// Namespace returns the namespace documents are written to.
func (u *Uploader) Namespace() string {
	return u.namespace
}

// Close releases the worker pool. A later UploadDirectory starts a new one.
func (u *Uploader) Close() {
	u.poolMu.Lock()
	defer u.poolMu.Unlock()
	if u.pool != nil {
		u.pool.Release()
		u.pool = nil
	}
}

// workers returns the file pool, creating it if Close released it.
func (u *Uploader) workers() (*ants.Pool, error) {
	u.poolMu.Lock()
	defer u.poolMu.Unlock()
	if u.pool == nil {
		pool, err := ants.NewPool(u.poolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker pool: %w", err)
		}
		u.pool = pool
	}
	return u.pool, nil
}

// UploadOption configures a single upload.
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	docID    string
	metadata core.Metadata
	replace  bool
}

// WithDocumentID uploads under id instead of a generated UUID.
func WithDocumentID(id string) UploadOption {
	return func(o *uploadOptions) {
		o.docID = id
	}
}

// WithMetadata attaches md to every chunk. Chunk fields take precedence over
// keys of the same name.
func WithMetadata(md core.Metadata) UploadOption {
	return func(o *uploadOptions) {
		o.metadata = o.metadata.Merge(md)
	}
}

// WithReplace removes vectors left over from a previous upload of the same
// document once the new ones are stored.
func WithReplace() UploadOption {
	return func(o *uploadOptions) {
		o.replace = true
	}
}

// Upload indexes text and returns its document id. The returned id is set
// even when the upload fails so callers can attribute the error.
func (u *Uploader) Upload(ctx context.Context, text string, opts ...UploadOption) (docID string, err error) {
	options := &uploadOptions{}
	for _, opt := range opts {
		opt(options)
	}
	docID = options.docID
	if docID == "" {
		docID = core.NewDocumentID()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "ingestion.Upload",
		trace.WithAttributes(
			attribute.String("doc_id", docID),
			attribute.String("namespace", u.namespace),
		))
	start := time.Now()
	defer func() {
		u.metrics.RecordOperation(ctx, "upload", err, time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	if err := core.ValidateDocumentID(docID); err != nil {
		return docID, err
	}

	u.logger.Info("processing document", "doc_id", docID, "chars", len([]rune(text)))

	chunks := u.chunker.Chunk(text, docID)
	if len(chunks) == 0 {
		return docID, fmt.Errorf("%w: %s", ErrEmptyDocument, docID)
	}
	u.logger.Debug("chunked document", "doc_id", docID, "chunks", len(chunks))
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := u.embedder.EmbedTexts(ctx, texts, ai.InputDocument)
	if err != nil {
		return docID, fmt.Errorf("failed to embed document %s: %w", docID, err)
	}
	if len(embeddings) == 0 {
		return docID, fmt.Errorf("%w: no embeddings returned for document %s", core.ErrProvider, docID)
	}
	if len(embeddings) != len(chunks) {
		return docID, fmt.Errorf("%w: got %d embeddings for %d chunks", core.ErrProvider, len(embeddings), len(chunks))
	}

	base := options.metadata.Merge(core.Metadata{
		KeyEmbeddingModel:      core.String(u.embedder.Model()),
		KeyEmbeddingDimensions: core.Int(u.embedder.Dimension()),
		KeyUploadedAt:          core.String(u.now().UTC().Format(time.RFC3339)),
		KeyContentHash:         core.String(core.ContentHash(text)),
	})

	vectors := make([]core.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = core.Vector{
			ID:       vectorstore.VectorID(c.ID),
			Values:   embeddings[i],
			Metadata: base.Merge(c.Metadata()),
		}
	}

	var previous []string
	if options.replace {
		previous, err = vectorstore.ListDocumentIDs(ctx, u.store, docID, u.namespace)
		if err != nil {
			return docID, err
		}
	}

	result, err := u.store.Upsert(ctx, vectors, u.namespace, u.batchSize)
	if err != nil {
		u.logger.Error("upsert failed", "doc_id", docID, "upserted", result.Upserted, "err", err)
		return docID, fmt.Errorf("failed to store document %s: %w", docID, err)
	}
	u.metrics.ChunksIngested.Add(ctx, int64(result.Upserted))

	if stale := staleIDs(previous, vectors); len(stale) > 0 {
		if err := u.store.Delete(ctx, stale, u.namespace); err != nil {
			return docID, fmt.Errorf("failed to remove %d stale vectors of document %s: %w", len(stale), docID, err)
		}
		u.logger.Debug("removed stale vectors", "doc_id", docID, "count", len(stale))
	}

	u.logger.Info("uploaded document", "doc_id", docID, "chunks", result.Upserted, "batches", result.Batches)
	return docID, nil
}

// staleIDs returns the ids in previous that were not just written.
func staleIDs(previous []string, written []core.Vector) []string {
	if len(previous) == 0 {
		return nil
	}
	current := make(map[string]struct{}, len(written))
	for _, v := range written {
		current[v.ID] = struct{}{}
	}
	var stale []string
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	slices.Sort(stale)
	return stale
}

// Delete removes every vector of docID.
func (u *Uploader) Delete(ctx context.Context, docID string) (vectorstore.DeleteResult, error) {
	u.logger.Info("deleting document", "doc_id", docID, "namespace", u.namespace)
	result, err := vectorstore.DeleteByDocument(ctx, u.store, docID, u.namespace)
	if err != nil {
		return result, err
	}
	u.logger.Info("deleted document", "doc_id", docID, "vectors", result.Deleted)
	return result, nil
}

// UpdateMetadata merges delta into every vector of docID.
func (u *Uploader) UpdateMetadata(ctx context.Context, docID string, delta core.Metadata) (vectorstore.UpdateResult, error) {
	u.logger.Info("updating document metadata", "doc_id", docID, "keys", len(delta))
	return vectorstore.UpdateMetadataByDocument(ctx, u.store, docID, u.namespace, delta,
		vectorstore.WithUpdateLogger(u.logger))
}

// DeleteAll removes every vector in the uploader's namespace.
func (u *Uploader) DeleteAll(ctx context.Context) error {
	u.logger.Warn("deleting namespace", "namespace", u.namespace)
	return u.store.DeleteNamespace(ctx, u.namespace)
}
