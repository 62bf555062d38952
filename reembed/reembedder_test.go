package reembed

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/ai/mock"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/poiesic/ragpipe/vectorstore/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNamespace = "test"

func setupTestStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore(mock.DefaultDimension)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// staleVector is a chunk embedded by a model that is no longer configured.
func staleVector(docID string, n int, text string) core.Vector {
	return core.Vector{
		ID:     vectorstore.VectorID(fmt.Sprintf("%s_chunk_%d", docID, n)),
		Values: mock.DeterministicVector("stale "+text, mock.DefaultDimension),
		Metadata: core.Metadata{
			core.KeyText:                     core.String(text),
			core.KeyDocID:                    core.String(docID),
			core.KeySource:                   core.String("manual"),
			ingestion.KeyEmbeddingModel:      core.String("old-model"),
			ingestion.KeyEmbeddingDimensions: core.Int(mock.DefaultDimension),
		},
	}
}

func seed(t *testing.T, store vectorstore.Store, vectors ...core.Vector) {
	t.Helper()
	_, err := store.Upsert(context.Background(), vectors, testNamespace, 100)
	require.NoError(t, err)
}

func testConfig() *Config {
	return &Config{
		BatchSize:      2,
		ReportInterval: 2,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}
}

func TestNewReembedder(t *testing.T) {
	store := setupTestStore(t)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), testNamespace, nil, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewReembedder(store, nil, testNamespace, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(store, mock.NewMockEmbedder(), testNamespace, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.iterator.batchSize)
}

func TestReembedder_Run(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	seed(t, store,
		staleVector("a", 1, "first chunk"),
		staleVector("a", 2, "second chunk"),
		staleVector("b", 1, "other document"),
	)

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	r, err := NewReembedder(store, embedder, testNamespace, testConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 3, Reembedded: 3}, result)
	assert.Equal(t, 2, embedder.CallCount(), "three vectors at two per batch")
	assert.Equal(t, ai.InputDocument, embedder.LastInputType())
	assert.Contains(t, buf.String(), "Re-embedded 3/3 vectors")
	assert.Contains(t, buf.String(), "Reembedding complete")

	got, err := store.Fetch(ctx, []string{"doc_a_chunk_2"}, testNamespace)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mock.DeterministicVector("second chunk", mock.DefaultDimension), got[0].Values)
	model, _ := got[0].Metadata[ingestion.KeyEmbeddingModel].AsString()
	assert.Equal(t, "mock-embedder", model)
	assert.Equal(t, "manual", got[0].Metadata.Source(), "other metadata is kept")

	t.Run("second run skips current vectors", func(t *testing.T) {
		embedder.Reset()
		result, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, Result{Scanned: 3, Skipped: 3}, result)
		assert.Zero(t, embedder.CallCount())
	})

	t.Run("force re-embeds everything", func(t *testing.T) {
		embedder.Reset()
		config := testConfig()
		config.Force = true
		forced, err := NewReembedder(store, embedder, testNamespace, config, nil)
		require.NoError(t, err)

		result, err := forced.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Reembedded)
	})
}

func TestReembedder_EmptyNamespace(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewReembedder(setupTestStore(t), mock.NewMockEmbedder(), testNamespace, testConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result)
	assert.Contains(t, buf.String(), "No vectors found")
}

func TestReembedder_DimensionChanged(t *testing.T) {
	store := setupTestStore(t)
	seed(t, store, staleVector("a", 1, "text"))

	r, err := NewReembedder(store, mock.NewMockEmbedder().WithDimension(4), testNamespace, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrDimensionChanged)
}

func TestBatchProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("vectors without text are skipped", func(t *testing.T) {
		store := setupTestStore(t)
		empty := staleVector("a", 1, "")
		embedder := mock.NewMockEmbedder()
		processor := NewBatchProcessor(store, embedder, testNamespace, false, 3, time.Millisecond)

		result, err := processor.Process(ctx, []core.Vector{empty})
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Skipped: 1}, result)
		assert.Zero(t, embedder.CallCount())
	})

	t.Run("empty batch", func(t *testing.T) {
		processor := NewBatchProcessor(setupTestStore(t), mock.NewMockEmbedder(), testNamespace, false, 3, time.Millisecond)
		result, err := processor.Process(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, result)
	})

	t.Run("transient embedding failure is retried", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder()
		failures := 1
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string, _ ai.InputType) ([][]float32, error) {
			if failures > 0 {
				failures--
				return nil, fmt.Errorf("%w: connection reset", core.ErrTransport)
			}
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = mock.DeterministicVector(text, mock.DefaultDimension)
			}
			return out, nil
		}
		processor := NewBatchProcessor(store, embedder, testNamespace, false, 3, time.Millisecond)

		result, err := processor.Process(ctx, []core.Vector{staleVector("a", 1, "retry me")})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Reembedded)
		assert.Equal(t, 2, embedder.CallCount())
	})

	t.Run("count mismatch is a provider error", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(context.Context, []string, ai.InputType) ([][]float32, error) {
			return [][]float32{}, nil
		}
		processor := NewBatchProcessor(setupTestStore(t), embedder, testNamespace, false, 1, time.Millisecond)

		_, err := processor.Process(ctx, []core.Vector{staleVector("a", 1, "x")})
		assert.ErrorIs(t, err, core.ErrProvider)
	})
}
