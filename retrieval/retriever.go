package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/telemetry"
	"github.com/poiesic/ragpipe/vectorstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	noResultsText    = "No relevant documents found."
	contextErrPrefix = "Error retrieving context: "
	unknownSource    = "Unknown"
)

// Retriever composes embed, query, dedupe, rerank, threshold and fallback
// into a single retrieval call. It holds no mutable state and is safe for
// concurrent use.
type Retriever struct {
	embedder  ai.Embedder
	store     vectorstore.Store
	reranker  ai.Reranker
	namespace string
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithReranker sets the reranker. Without one, every call behaves as if
// rerank were disabled.
func WithReranker(reranker ai.Reranker) Option {
	return func(r *Retriever) error {
		r.reranker = reranker
		return nil
	}
}

// WithDefaultNamespace sets the namespace used when a call does not name one.
func WithDefaultNamespace(namespace string) Option {
	return func(r *Retriever) error {
		r.namespace = namespace
		return nil
	}
}

// WithMetrics replaces the global instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Retriever) error {
		if m != nil {
			r.metrics = m
		}
		return nil
	}
}

// NewRetriever creates a retriever over store using embedder for queries.
func NewRetriever(embedder ai.Embedder, store vectorstore.Store, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	r := &Retriever{
		embedder: embedder,
		store:    store,
		logger:   slog.Default().With("component", "retriever"),
		metrics:  telemetry.Default(),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RetrieveResult is the outcome of Retrieve. RerankStatus is Unranked when
// rerank was disabled or degraded; RerankErr holds the absorbed cause.
type RetrieveResult struct {
	Candidates        []core.Candidate
	RerankStatus      ai.RerankStatus
	RerankErr         error
	ThresholdFallback bool
}

// Dedupe keeps the first occurrence of each id in order. Candidates without
// an id are dropped.
func Dedupe(candidates []core.Candidate) []core.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

func truncate(candidates []core.Candidate, n int) []core.Candidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

// Retrieve returns up to top_n candidates for query. An index with no
// matches yields an empty result, not an error. Embedding and store errors
// propagate; rerank failures degrade to similarity order.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...QueryOption) (result RetrieveResult, err error) {
	o := defaultQueryOptions()
	for _, opt := range opts {
		opt(o)
	}
	return r.retrieve(ctx, query, o)
}

func (r *Retriever) retrieve(ctx context.Context, query string, o *queryOptions) (result RetrieveResult, err error) {
	namespace := r.namespace
	if o.namespace != nil {
		namespace = *o.namespace
	}

	ctx, span := r.tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(
		attribute.Int("retrieval.top_k", o.topK),
		attribute.Int("retrieval.top_n", o.topN),
		attribute.Bool("retrieval.rerank", o.rerank),
		attribute.String("retrieval.namespace", namespace),
	))
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.Int("retrieval.results", len(result.Candidates)),
			attribute.String("retrieval.rerank_status", result.RerankStatus.String()),
		)
		telemetry.EndSpan(span, err)
		r.metrics.RecordOperation(ctx, "retrieve", err, time.Since(start))
		if err == nil {
			r.metrics.Candidates.Record(ctx, int64(len(result.Candidates)))
		}
	}()

	if strings.TrimSpace(query) == "" {
		return result, ErrEmptyQuery
	}
	if err := o.validate(); err != nil {
		return result, err
	}

	o.monitor.Start(query)
	r.logger.Debug("starting retrieval", "query", query, "top_k", o.topK, "top_n", o.topN)

	vector, err := r.embedder.EmbedText(ctx, query, ai.InputQuery)
	if err != nil {
		return result, fmt.Errorf("failed to embed query: %w", err)
	}
	o.monitor.AfterEmbedding(vector)

	matches, err := r.store.Query(ctx, vectorstore.QueryRequest{
		Vector:          vector,
		TopK:            o.topK,
		Namespace:       namespace,
		Filter:          o.filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return result, fmt.Errorf("failed to query vector store: %w", err)
	}
	o.monitor.AfterQuery(matches)

	if len(matches) == 0 {
		r.logger.Warn("no results found in vector store", "namespace", namespace)
		result.Candidates = []core.Candidate{}
		o.monitor.Finish(result)
		return result, nil
	}

	// Unranked candidates report their similarity score as relevance.
	unique := Dedupe(matches)
	o.monitor.AfterDedupe(unique)

	if !o.rerank || r.reranker == nil || len(unique) == 0 {
		result.Candidates = truncate(unique, o.topN)
		o.monitor.Finish(result)
		return result, nil
	}

	outcome := r.reranker.Rerank(ctx, query, unique, o.topN)
	o.monitor.AfterRerank(outcome)
	result.RerankStatus = outcome.Status
	result.RerankErr = outcome.Err

	if outcome.Status != ai.Reranked {
		r.metrics.RerankDegraded.Add(ctx, 1)
		r.logger.Warn("rerank degraded, using similarity order", "err", outcome.Err)
		result.Candidates = truncate(unique, o.topN)
		o.monitor.Finish(result)
		return result, nil
	}

	reranked := outcome.Candidates
	filtered := make([]core.Candidate, 0, len(reranked))
	for _, c := range reranked {
		if c.RelevanceScore() >= o.threshold {
			filtered = append(filtered, c)
		}
	}

	// An over-strict threshold must not empty a non-empty reranked set.
	if len(filtered) == 0 && len(reranked) > 0 {
		r.logger.Info("no results above relevance threshold, returning top reranked", "threshold", o.threshold)
		o.monitor.ThresholdFallback(reranked)
		result.ThresholdFallback = true
		filtered = truncate(reranked, o.topN)
	}

	result.Candidates = filtered
	r.logger.Debug("retrieval finished", "results", len(filtered), "elapsed", time.Since(start))
	o.monitor.Finish(result)
	return result, nil
}

// Context retrieves with the default window and formats the candidates
// for a prompt, appending whole texts while they fit within max_chars. It
// never fails: empty retrieval and errors are reported as text.
func (r *Retriever) Context(ctx context.Context, query string, opts ...QueryOption) string {
	o := defaultQueryOptions()
	for _, opt := range opts {
		opt(o)
	}

	ctx, span := r.tracer.Start(ctx, "retrieval.Context", trace.WithAttributes(
		attribute.Int("retrieval.max_chars", o.maxChars),
	))
	defer span.End()

	result, err := r.retrieve(ctx, query, o)
	if err != nil {
		r.logger.Error("error getting context", "err", err)
		return contextErrPrefix + err.Error()
	}
	return FormatContext(result.Candidates, o.maxChars)
}

// FormatContext renders candidates as numbered documents, stopping at the
// first candidate without text or whose text would exceed maxChars.
func FormatContext(candidates []core.Candidate, maxChars int) string {
	var parts []string
	used := 0
	for i, c := range candidates {
		text := c.Text()
		length := utf8.RuneCountInString(text)
		if text == "" || used+length > maxChars {
			break
		}
		source := c.Source()
		if source == "" {
			source = unknownSource
		}
		parts = append(parts, fmt.Sprintf("[Document %d] (Source: %s, Score: %.3f)\n%s\n", i+1, source, c.RelevanceScore(), text))
		used += length
	}
	if len(parts) == 0 {
		return noResultsText
	}
	return strings.Join(parts, "\n")
}
