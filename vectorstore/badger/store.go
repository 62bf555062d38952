package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
)

// DefaultListPageSize is the number of ids returned per ListIDs page.
const DefaultListPageSize = 100

// ErrCollectionNotFound is returned by data operations before
// EnsureCollection has been called.
var ErrCollectionNotFound = errors.New("collection not found")

// Store is an embedded vectorstore.Store on top of BadgerDB. Similarity
// search is an exhaustive scan of the namespace, which suits local corpora
// and tests rather than large indexes.
type Store struct {
	backend     *Backend
	ownsBackend bool
	pageSize    int
	logger      *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithListPageSize sets the page size of ListIDs.
func WithListPageSize(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("%w: list page size must be positive, got %d", core.ErrConfig, n)
		}
		s.pageSize = n
		return nil
	}
}

// NewStore creates a Store on an open backend. The caller keeps ownership
// of the backend.
func NewStore(backend *Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: badger backend required", core.ErrConfig)
	}
	s := &Store{
		backend:  backend,
		pageSize: DefaultListPageSize,
		logger:   slog.Default().With("component", "badger-store"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open opens a database at dirPath, or in memory, and returns a Store that
// closes it on Close.
func Open(dirPath string, inMemory bool, opts ...Option) (*Store, error) {
	backend, err := OpenBackend(dirPath, inMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	s, err := NewStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.ownsBackend = true
	return s, nil
}

// Close closes the backend if the store opened it.
func (s *Store) Close() error {
	if !s.ownsBackend || s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) checkOpen() error {
	if s.backend.IsClosed() {
		return fmt.Errorf("%w: database is closed", core.ErrStoreUnavailable)
	}
	return nil
}

func readCollection(tx *badger.Txn) (vectorstore.CollectionSpec, error) {
	item, err := tx.Get([]byte(collectionKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return vectorstore.CollectionSpec{}, ErrCollectionNotFound
	}
	if err != nil {
		return vectorstore.CollectionSpec{}, err
	}
	var spec vectorstore.CollectionSpec
	err = item.Value(func(val []byte) error {
		spec, err = unmarshalCollection(val)
		return err
	})
	return spec, err
}

// Collection returns the stored collection spec.
func (s *Store) Collection(ctx context.Context) (vectorstore.CollectionSpec, error) {
	if err := s.checkOpen(); err != nil {
		return vectorstore.CollectionSpec{}, err
	}
	var spec vectorstore.CollectionSpec
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		spec, err = readCollection(tx)
		return err
	}, false)
	return spec, err
}

// EnsureCollection records spec on first use. A later call must agree on
// dimension and metric.
func (s *Store) EnsureCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: collection dimension must be positive, got %d", core.ErrConfig, spec.Dimension)
	}
	if spec.Metric == "" {
		spec.Metric = vectorstore.MetricCosine
	}
	if err := spec.Metric.Validate(); err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCollection(tx)
		if err == nil {
			if existing.Dimension != spec.Dimension || existing.Metric != spec.Metric {
				return fmt.Errorf("%w: collection %q exists with dimension %d and metric %s",
					core.ErrConfig, existing.Name, existing.Dimension, existing.Metric)
			}
			s.logger.Debug("collection already exists", "name", existing.Name)
			return nil
		}
		if !errors.Is(err, ErrCollectionNotFound) {
			return err
		}
		if err := tx.Set([]byte(collectionKey), marshalCollection(spec)); err != nil {
			return err
		}
		s.logger.Info("created collection", "name", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
		return tx.Commit()
	}, true)
}

// Upsert writes vectors in sequential batches, one transaction per batch.
func (s *Store) Upsert(ctx context.Context, vectors []core.Vector, namespace string, batchSize int) (vectorstore.UpsertResult, error) {
	if err := s.checkOpen(); err != nil {
		return vectorstore.UpsertResult{}, err
	}
	spec, err := s.Collection(ctx)
	if err != nil {
		return vectorstore.UpsertResult{}, err
	}

	return vectorstore.UpsertBatches(ctx, vectors, batchSize, func(ctx context.Context, batch []core.Vector) error {
		return s.backend.WithTx(func(tx *badger.Txn) error {
			for _, v := range batch {
				if len(v.Values) != spec.Dimension {
					return fmt.Errorf("%w: vector %s has %d values, collection expects %d",
						vectorstore.ErrDimensionMismatch, v.ID, len(v.Values), spec.Dimension)
				}
				record := vectorRecord{Values: v.Values, Metadata: v.Metadata}
				if err := tx.Set(makeVectorKey(namespace, v.ID), marshalRecord(record)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
	})
}

// ListIDs returns ids with prefix in key order. The page token is the last
// id of the previous page.
func (s *Store) ListIDs(ctx context.Context, prefix, namespace, pageToken string) (vectorstore.IDPage, error) {
	if err := s.checkOpen(); err != nil {
		return vectorstore.IDPage{}, err
	}
	nsPrefix := makeNamespacePrefix(namespace)
	var page vectorstore.IDPage

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeVectorKey(namespace, prefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		seek := opts.Prefix
		if pageToken != "" {
			seek = makeVectorKey(namespace, pageToken)
		}
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			id := vectorIDFromKey(iter.Item().Key(), nsPrefix)
			if id == pageToken {
				continue
			}
			if len(page.IDs) == s.pageSize {
				page.NextToken = page.IDs[len(page.IDs)-1]
				return nil
			}
			page.IDs = append(page.IDs, id)
		}
		return nil
	}, false)
	return page, err
}

// Delete removes ids. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string, namespace string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(namespace, id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Fetch returns the records of ids, skipping unknown ones.
func (s *Store) Fetch(ctx context.Context, ids []string, namespace string) ([]core.Vector, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	vectors := make([]core.Vector, 0, len(ids))
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeVectorKey(namespace, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var record vectorRecord
			err = item.Value(func(val []byte) error {
				record, err = unmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			vectors = append(vectors, core.Vector{ID: id, Values: record.Values, Metadata: record.Metadata})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// UpdateMetadata merges delta into the metadata of id. A missing id is
// ignored, as it is by hosted indexes.
func (s *Store) UpdateMetadata(ctx context.Context, id string, delta core.Metadata, namespace string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := makeVectorKey(namespace, id)
	return s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var record vectorRecord
		err = item.Value(func(val []byte) error {
			record, err = unmarshalRecord(val)
			return err
		})
		if err != nil {
			return err
		}
		record.Metadata = record.Metadata.Merge(delta)
		if err := tx.Set(key, marshalRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Query scans the namespace and returns the TopK best matches.
func (s *Store) Query(ctx context.Context, req vectorstore.QueryRequest) ([]core.Candidate, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if req.TopK <= 0 {
		return nil, nil
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	spec, err := s.Collection(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != spec.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, collection expects %d",
			vectorstore.ErrDimensionMismatch, len(req.Vector), spec.Dimension)
	}

	nsPrefix := makeNamespacePrefix(req.Namespace)
	var results []core.Candidate

	err = s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = nsPrefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()

			var record vectorRecord
			err := item.Value(func(val []byte) error {
				var err error
				record, err = unmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}

			if len(req.Filter) > 0 {
				ok, err := req.Filter.Match(record.Metadata)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}

			candidate := core.Candidate{
				ID:    vectorIDFromKey(item.Key(), nsPrefix),
				Score: similarity(spec.Metric, req.Vector, record.Values),
			}
			if req.IncludeMetadata {
				candidate.Metadata = record.Metadata
			}
			results = append(results, candidate)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ties by id for stable output
	slices.SortFunc(results, func(a, b core.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

// DeleteNamespace removes every vector in namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.backend.DropPrefix(makeNamespacePrefix(namespace))
}

// similarity scores b against a; higher is always more similar.
// Euclidean distance d is reported as 1/(1+d).
func similarity(metric vectorstore.Metric, a, b []float32) float64 {
	switch metric {
	case vectorstore.MetricDotProduct:
		return dotProduct(a, b)
	case vectorstore.MetricEuclidean:
		var sum float64
		for i := range min(len(a), len(b)) {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		na, nb := math.Sqrt(dotProduct(a, a)), math.Sqrt(dotProduct(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return dotProduct(a, b) / (na * nb)
	}
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
