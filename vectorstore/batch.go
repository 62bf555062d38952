package vectorstore

import (
	"context"
	"fmt"

	"github.com/poiesic/ragpipe/core"
)

// DefaultBatchSize is the number of vectors sent per upsert request.
const DefaultBatchSize = 100

// UpsertBatches splits vectors into batches of batchSize and calls write on
// each in order, stopping at the first failure.
func UpsertBatches(ctx context.Context, vectors []core.Vector, batchSize int, write func(ctx context.Context, batch []core.Vector) error) (UpsertResult, error) {
	if batchSize <= 0 {
		return UpsertResult{}, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}

	var result UpsertResult
	for start := 0; start < len(vectors); start += batchSize {
		end := min(start+batchSize, len(vectors))
		if err := ctx.Err(); err != nil {
			return result, &BatchError{Batch: result.Batches, Upserted: result.Upserted, Err: err}
		}
		if err := write(ctx, vectors[start:end]); err != nil {
			return result, &BatchError{Batch: result.Batches, Upserted: result.Upserted, Err: err}
		}
		result.Upserted += end - start
		result.Batches++
	}
	return result, nil
}
