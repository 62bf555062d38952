package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/retry"
	"github.com/poiesic/ragpipe/vectorstore"
)

// BatchResult counts what Process did with one batch.
type BatchResult struct {
	Reembedded int
	Skipped    int
}

// BatchProcessor re-embeds batches of stored vectors and writes them back.
type BatchProcessor struct {
	store          vectorstore.Store
	embedder       ai.Embedder
	namespace      string
	force          bool
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding and upsert calls
// retryBaseDelay: base delay for exponential backoff
// force: re-embed vectors already stamped with the current model
func NewBatchProcessor(store vectorstore.Store, embedder ai.Embedder, namespace string, force bool, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &BatchProcessor{
		store:          store,
		embedder:       embedder,
		namespace:      namespace,
		force:          force,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         slog.Default().With("component", "reembed"),
	}
}

// current reports whether v was embedded by the processor's model.
func (bp *BatchProcessor) current(v core.Vector) bool {
	model, _ := v.Metadata[ingestion.KeyEmbeddingModel].AsString()
	dims, _ := v.Metadata[ingestion.KeyEmbeddingDimensions].AsNumber()
	return model == bp.embedder.Model() && int(dims) == bp.embedder.Dimension()
}

// Process re-embeds the text of each vector and upserts the result under
// the same id. Vectors without text, or already current unless forced,
// are skipped.
func (bp *BatchProcessor) Process(ctx context.Context, vectors []core.Vector) (BatchResult, error) {
	var result BatchResult
	if len(vectors) == 0 {
		return result, nil
	}

	pending := make([]core.Vector, 0, len(vectors))
	texts := make([]string, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Values) > 0 && len(v.Values) != bp.embedder.Dimension() {
			return result, fmt.Errorf("%w: vector %s has %d values, embedder produces %d",
				ErrDimensionChanged, v.ID, len(v.Values), bp.embedder.Dimension())
		}
		if !bp.force && bp.current(v) {
			result.Skipped++
			continue
		}
		text := v.Metadata.Text()
		if text == "" {
			bp.logger.Warn("skipping vector without text", "id", v.ID)
			result.Skipped++
			continue
		}
		pending = append(pending, v)
		texts = append(texts, text)
	}
	if len(pending) == 0 {
		return result, nil
	}

	var embeddings [][]float32
	err := retry.WithBackoff(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts, ai.InputDocument)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return result, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}
	if len(embeddings) != len(pending) {
		return result, fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", core.ErrProvider, len(pending), len(embeddings))
	}

	stamps := core.Metadata{
		ingestion.KeyEmbeddingModel:      core.String(bp.embedder.Model()),
		ingestion.KeyEmbeddingDimensions: core.Int(bp.embedder.Dimension()),
	}
	for i := range pending {
		pending[i].Values = embeddings[i]
		pending[i].Metadata = pending[i].Metadata.Merge(stamps)
	}

	err = retry.WithBackoff(ctx, func(ctx context.Context) error {
		_, err := bp.store.Upsert(ctx, pending, bp.namespace, len(pending))
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return result, fmt.Errorf("failed to store re-embedded vectors: %w", err)
	}

	result.Reembedded = len(pending)
	return result, nil
}
