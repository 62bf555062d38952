package retrieval

import (
	"fmt"

	"github.com/poiesic/ragpipe/vectorstore"
)

const (
	DefaultTopK      = 10
	DefaultTopN      = 5
	DefaultThreshold = 0.1
	DefaultMaxChars  = 2000

	// SearchDocuments uses a narrower window than Retrieve.
	DefaultSearchTopK = 6
	DefaultSearchTopN = 3
)

// QueryOption configures a single Retrieve, Context or SearchDocuments call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	topK      int
	topN      int
	threshold float64
	filter    vectorstore.Filter
	rerank    bool
	namespace *string
	maxChars  int
	monitor   Monitor
}

func defaultQueryOptions() *queryOptions {
	return &queryOptions{
		topK:      DefaultTopK,
		topN:      DefaultTopN,
		threshold: DefaultThreshold,
		rerank:    true,
		maxChars:  DefaultMaxChars,
		monitor:   &noopMonitor{},
	}
}

func (o *queryOptions) validate() error {
	if o.topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidOptions, o.topK)
	}
	if o.topN <= 0 {
		return fmt.Errorf("%w: top_n must be positive, got %d", ErrInvalidOptions, o.topN)
	}
	return nil
}

// WithTopK sets the number of nearest candidates requested from the store.
func WithTopK(k int) QueryOption {
	return func(o *queryOptions) { o.topK = k }
}

// WithTopN sets the maximum number of candidates returned.
func WithTopN(n int) QueryOption {
	return func(o *queryOptions) { o.topN = n }
}

// WithThreshold sets the minimum rerank relevance score.
func WithThreshold(threshold float64) QueryOption {
	return func(o *queryOptions) { o.threshold = threshold }
}

// WithFilter restricts the similarity query by metadata.
func WithFilter(filter vectorstore.Filter) QueryOption {
	return func(o *queryOptions) { o.filter = filter }
}

// WithRerank turns the rerank stage on or off.
func WithRerank(enabled bool) QueryOption {
	return func(o *queryOptions) { o.rerank = enabled }
}

// WithNamespace overrides the retriever's namespace for one call.
func WithNamespace(namespace string) QueryOption {
	return func(o *queryOptions) { o.namespace = &namespace }
}

// WithMaxChars bounds the total text length assembled by Context.
func WithMaxChars(n int) QueryOption {
	return func(o *queryOptions) { o.maxChars = n }
}

// WithMonitor observes each stage of the call.
func WithMonitor(m Monitor) QueryOption {
	return func(o *queryOptions) {
		if m != nil {
			o.monitor = m
		}
	}
}
