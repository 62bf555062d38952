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

package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned when a nil Store is passed to a helper.
	ErrStoreRequired = errors.New("vector store required")

	// ErrInvalidBatchSize is returned for a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidFilter is returned for a malformed metadata filter.
	ErrInvalidFilter = errors.New("invalid metadata filter")

	// ErrDimensionMismatch is returned when a vector does not match the
	// collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// UpsertResult counts what an upsert wrote.
type UpsertResult struct {
	Upserted int
	Batches  int
}

// BatchError reports the batch that failed during an upsert. Batches before
// it were written; Upserted counts their vectors.
type BatchError struct {
	Batch    int // zero-based index of the failed batch
	Upserted int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert batch %d failed after %d vectors were written: %v", e.Batch, e.Upserted, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// DeleteResult counts the vectors a document delete removed.
type DeleteResult struct {
	Matched int
	Deleted int
}

// UpdateResult counts the outcome of a document metadata update.
type UpdateResult struct {
	Matched int
	Updated int
	Failed  int
}
