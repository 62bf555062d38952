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


package reembed

import (
	"context"
	"slices"

	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
)

const (
	// DefaultBatchSize is the default number of vectors fetched and
	// re-embedded together.
	DefaultBatchSize = 96
)

// VectorIterator fetches stored vectors in batches.
type VectorIterator struct {
	store     vectorstore.Store
	namespace string
	batchSize int
}

// NewVectorIterator creates a new vector iterator.
// batchSize: number of vectors to fetch per call (defaults when <= 0)
func NewVectorIterator(store vectorstore.Store, namespace string, batchSize int) *VectorIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &VectorIterator{
		store:     store,
		namespace: namespace,
		batchSize: batchSize,
	}
}

// ForEach fetches ids in batches and calls fn with each non-empty batch.
// Iteration stops on the first error from fn or the store.
// Context cancellation is checked between batches.
func (it *VectorIterator) ForEach(ctx context.Context, ids []string, fn func([]core.Vector) error) error {
	for batch := range slices.Chunk(ids, it.batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		vectors, err := it.store.Fetch(ctx, batch, it.namespace)
		if err != nil {
			return err
		}
		// Ids deleted since listing are skipped by Fetch.
		if len(vectors) == 0 {
			continue
		}

		if err := fn(vectors); err != nil {
			return err
		}
	}
	return nil
}
