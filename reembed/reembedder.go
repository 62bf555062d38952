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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/vectorstore"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of vectors to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of vectors)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Force re-embeds vectors already stamped with the current model
	Force bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a run.
type Result struct {
	Scanned    int
	Reembedded int
	Skipped    int
}

// Reembedder orchestrates the reembedding of every vector in a namespace.
type Reembedder struct {
	store     vectorstore.Store
	namespace string
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *VectorIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr); nil disables it
func NewReembedder(store vectorstore.Store, embedder ai.Embedder, namespace string, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		namespace: namespace,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, embedder, namespace, config.Force, config.MaxRetries, config.RetryDelay),
		iterator:  NewVectorIterator(store, namespace, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run re-embeds every document vector in the namespace. On error the
// result counts the batches completed before it.
func (r *Reembedder) Run(ctx context.Context) (Result, error) {
	var result Result

	ids, err := vectorstore.ListNamespaceIDs(ctx, r.store, r.namespace)
	if err != nil {
		return result, err
	}
	if len(ids) == 0 {
		fmt.Fprintf(r.progress, "No vectors found in namespace %q\n", r.namespace)
		return result, nil
	}

	r.logger.Info("starting reembedding", "namespace", r.namespace, "vectors", len(ids), "force", r.config.Force)
	fmt.Fprintf(r.progress, "Starting reembedding of %d vectors (batch size: %d)\n",
		len(ids), r.iterator.batchSize)

	tracker := ingestion.NewProgressTracker(r.progress, len(ids), r.config.ReportInterval).
		WithLabel("Re-embedded", "vectors")
	tracker.Start()
	start := time.Now()

	err = r.iterator.ForEach(ctx, ids, func(vectors []core.Vector) error {
		batch, err := r.processor.Process(ctx, vectors)
		result.Reembedded += batch.Reembedded
		result.Skipped += batch.Skipped
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		result.Scanned += len(vectors)
		tracker.Increment(len(vectors))
		return nil
	})
	if err != nil {
		return result, err
	}

	tracker.Finish()

	elapsed := time.Since(start)
	fmt.Fprintf(r.progress, "Reembedding complete. Re-embedded %d and skipped %d of %d vectors in %v\n",
		result.Reembedded, result.Skipped, result.Scanned, elapsed.Round(time.Millisecond))
	r.logger.Info("reembedding complete", "reembedded", result.Reembedded, "skipped", result.Skipped, "elapsed", elapsed)
	return result, nil
}
