package vectorstore

import (
	"context"
	"fmt"

	"github.com/poiesic/ragpipe/core"
)

// Metric is the similarity function of a collection.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// Validate reports whether m is a supported metric.
func (m Metric) Validate() error {
	switch m {
	case MetricCosine, MetricDotProduct, MetricEuclidean:
		return nil
	}
	return fmt.Errorf("%w: unknown metric %q", core.ErrConfig, m)
}

// CollectionSpec describes the backing index of a store.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    Metric
	Cloud     string
	Region    string
}

// QueryRequest is a similarity search.
type QueryRequest struct {
	Vector          []float32
	TopK            int
	Namespace       string
	Filter          Filter
	IncludeMetadata bool
}

// IDPage is one page of a prefix listing. An empty NextToken marks the last page.
type IDPage struct {
	IDs       []string
	NextToken string
}

// Store is a vector index partitioned into namespaces.
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	// Calling it again with the same spec is a no-op.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// Upsert writes vectors in sequential batches. The first failing batch
	// aborts the rest and is reported as a *BatchError.
	Upsert(ctx context.Context, vectors []core.Vector, namespace string, batchSize int) (UpsertResult, error)

	// ListIDs returns one page of ids starting with prefix.
	ListIDs(ctx context.Context, prefix, namespace, pageToken string) (IDPage, error)

	// Delete removes ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string, namespace string) error

	// Fetch returns the stored vectors of ids in the order given. Unknown
	// ids are skipped.
	Fetch(ctx context.Context, ids []string, namespace string) ([]core.Vector, error)

	// UpdateMetadata merges delta into the metadata of id.
	UpdateMetadata(ctx context.Context, id string, delta core.Metadata, namespace string) error

	// Query returns up to TopK matches by descending similarity.
	Query(ctx context.Context, req QueryRequest) ([]core.Candidate, error)

	// DeleteNamespace removes every vector in namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	Close() error
}
