package ai

import (
	"context"

	"github.com/poiesic/ragpipe/core"
)

// InputType tells the embedding provider whether text is being indexed or
// used to search. Providers that do not distinguish the two ignore it.
type InputType string

const (
	InputDocument InputType = "search_document"
	InputQuery    InputType = "search_query"
)

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string, inputType InputType) ([]float32, error)

	// EmbedTexts generates embeddings for a batch in a single provider call.
	// The result has the same length and order as texts.
	// Returns an error wrapping core.ErrProvider for empty or malformed
	// results and core.ErrTransport for network failures.
	EmbedTexts(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)

	// Dimension is the length of every returned vector.
	Dimension() int

	// Model is the provider's model identifier.
	Model() string
}

// RerankStatus distinguishes full-quality reranked output from the
// degraded pass-through.
type RerankStatus int

const (
	// Unranked means the candidates are returned in their original order
	// because the reranker failed, returned nothing, or had nothing to rank.
	Unranked RerankStatus = iota
	// Reranked means the candidates were reordered by the provider and carry
	// relevance scores.
	Reranked
)

func (s RerankStatus) String() string {
	if s == Reranked {
		return "reranked"
	}
	return "unranked"
}

// RerankOutcome is the result of a rerank call. Err is set to the absorbed
// cause when Status is Unranked because of a failure.
type RerankOutcome struct {
	Candidates []core.Candidate
	Status     RerankStatus
	Err        error
}

// Reranker reorders candidates against a query.
// Rerank never fails: on any provider problem it returns the input unchanged
// with Status Unranked.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []core.Candidate, topN int) RerankOutcome
}

// Provider aggregates AI services that share configuration and a
// connection resource.
type Provider interface {
	Embedder() Embedder

	// Reranker returns nil when the provider has no rerank capability.
	Reranker() Reranker

	// Close releases the shared connection resource. It is safe to call
	// more than once.
	Close() error
}
