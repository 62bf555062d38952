package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragpipe/core"
)

const (
	// deleteBatchSize matches the per-request id limit of hosted indexes.
	deleteBatchSize = 1000

	// DefaultPatchConcurrency bounds concurrent metadata patch calls.
	DefaultPatchConcurrency = 16
)

// ListDocumentIDs follows every page of the prefix listing for docID.
func ListDocumentIDs(ctx context.Context, store Store, docID, namespace string) ([]string, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if err := core.ValidateDocumentID(docID); err != nil {
		return nil, err
	}

	ids, err := listPrefix(ctx, store, DocumentPrefix(docID), namespace)
	if err != nil {
		return ids, fmt.Errorf("failed to list ids for document %s: %w", docID, err)
	}
	return ids, nil
}

// ListNamespaceIDs returns the id of every document vector in namespace.
func ListNamespaceIDs(ctx context.Context, store Store, namespace string) ([]string, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	ids, err := listPrefix(ctx, store, documentPrefix, namespace)
	if err != nil {
		return ids, fmt.Errorf("failed to list ids in namespace %q: %w", namespace, err)
	}
	return ids, nil
}

func listPrefix(ctx context.Context, store Store, prefix, namespace string) ([]string, error) {
	var ids []string
	token := ""
	for {
		page, err := store.ListIDs(ctx, prefix, namespace, token)
		if err != nil {
			return ids, err
		}
		ids = append(ids, page.IDs...)
		if page.NextToken == "" || page.NextToken == token {
			return ids, nil
		}
		token = page.NextToken
	}
}

// DeleteByDocument removes every vector of docID. A document with no vectors
// is a no-op. On failure the result counts what was deleted before it.
func DeleteByDocument(ctx context.Context, store Store, docID, namespace string) (DeleteResult, error) {
	ids, err := ListDocumentIDs(ctx, store, docID, namespace)
	if err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{Matched: len(ids)}
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		if err := store.Delete(ctx, ids[start:end], namespace); err != nil {
			return result, fmt.Errorf("failed to delete document %s after %d of %d vectors: %w", docID, result.Deleted, len(ids), err)
		}
		result.Deleted += end - start
	}
	return result, nil
}

// UpdateOption configures UpdateMetadataByDocument.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	concurrency int
	logger      *slog.Logger
}

// WithPatchConcurrency bounds the number of patch calls in flight.
func WithPatchConcurrency(n int) UpdateOption {
	return func(o *updateOptions) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// WithUpdateLogger sets the logger used for per-id failures.
func WithUpdateLogger(logger *slog.Logger) UpdateOption {
	return func(o *updateOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// UpdateMetadataByDocument merges delta into every vector of docID. Patches
// run concurrently on a bounded pool and are all joined before returning.
// An empty delta or a document with no vectors is a no-op. Any failed patch
// fails the call; the result reports how many succeeded.
func UpdateMetadataByDocument(ctx context.Context, store Store, docID, namespace string, delta core.Metadata, opts ...UpdateOption) (UpdateResult, error) {
	if store == nil {
		return UpdateResult{}, ErrStoreRequired
	}
	if len(delta) == 0 {
		return UpdateResult{}, nil
	}

	options := &updateOptions{
		concurrency: DefaultPatchConcurrency,
		logger:      slog.Default().With("component", "vectorstore"),
	}
	for _, opt := range opts {
		opt(options)
	}

	ids, err := ListDocumentIDs(ctx, store, docID, namespace)
	if err != nil {
		return UpdateResult{}, err
	}
	result := UpdateResult{Matched: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	pool, err := ants.NewPool(min(options.concurrency, len(ids)))
	if err != nil {
		return result, err
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			err := store.UpdateMetadata(ctx, id, delta, namespace)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				options.logger.Error("metadata patch failed", "id", id, "err", err)
				result.Failed++
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				return
			}
			result.Updated++
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			result.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", id, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return result, fmt.Errorf("failed to update %d of %d vectors for document %s: %w", result.Failed, result.Matched, docID, errors.Join(errs...))
	}
	return result, nil
}
