package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewMemoryStore(testDim, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func vec(id string, values ...float32) core.Vector {
	return core.Vector{
		ID:     id,
		Values: values,
		Metadata: core.Metadata{
			core.KeyText:   core.String("text of " + id),
			core.KeySource: core.String("test"),
		},
	}
}

func TestOpen_FileSystem(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, false)
	require.NoError(t, err)
	ctx := context.Background()

	spec := vectorstore.CollectionSpec{Name: "docs", Dimension: testDim, Metric: vectorstore.MetricDotProduct}
	require.NoError(t, store.EnsureCollection(ctx, spec))
	_, err = store.Upsert(ctx, []core.Vector{vec("doc_a_chunk_1", 1, 0, 0)}, "ns", 10)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir, false)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, spec, got)

	page, err := reopened.ListIDs(ctx, "doc_a_", "ns", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_a_chunk_1"}, page.IDs)
}

func TestEnsureCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("repeat call is a no-op", func(t *testing.T) {
		err := store.EnsureCollection(ctx, vectorstore.CollectionSpec{Name: "memory", Dimension: testDim, Metric: vectorstore.MetricCosine})
		assert.NoError(t, err)
	})

	t.Run("conflicting dimension is rejected", func(t *testing.T) {
		err := store.EnsureCollection(ctx, vectorstore.CollectionSpec{Name: "memory", Dimension: 5, Metric: vectorstore.MetricCosine})
		assert.ErrorIs(t, err, core.ErrConfig)
	})

	t.Run("bad dimension", func(t *testing.T) {
		err := store.EnsureCollection(ctx, vectorstore.CollectionSpec{Name: "x", Dimension: 0})
		assert.ErrorIs(t, err, core.ErrConfig)
	})
}

func TestUpsert_RequiresCollection(t *testing.T) {
	store, err := Open("", true)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Upsert(context.Background(), []core.Vector{vec("a", 1, 0, 0)}, "", 10)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	vectors := []core.Vector{vec("a", 1, 0, 0), vec("b", 1, 0)}

	result, err := store.Upsert(context.Background(), vectors, "", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	var batchErr *vectorstore.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Batch)
	assert.Equal(t, 1, result.Upserted)
}

func TestListIDs_Pagination(t *testing.T) {
	store := newTestStore(t, WithListPageSize(3))
	ctx := context.Background()

	var vectors []core.Vector
	for i := range 7 {
		vectors = append(vectors, vec(fmt.Sprintf("doc_a_chunk_%d", i), 1, 0, 0))
	}
	vectors = append(vectors, vec("doc_ab_chunk_1", 0, 1, 0))
	_, err := store.Upsert(ctx, vectors, "ns", 100)
	require.NoError(t, err)

	var all []string
	token := ""
	pages := 0
	for {
		page, err := store.ListIDs(ctx, "doc_a_", "ns", token)
		require.NoError(t, err)
		pages++
		all = append(all, page.IDs...)
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, all, 7)
	assert.NotContains(t, all, "doc_ab_chunk_1")

	t.Run("namespaces are isolated", func(t *testing.T) {
		page, err := store.ListIDs(ctx, "doc_a_", "other", "")
		require.NoError(t, err)
		assert.Empty(t, page.IDs)
	})
}

func TestDeleteByDocument_Badger(t *testing.T) {
	store := newTestStore(t, WithListPageSize(2))
	ctx := context.Background()

	_, err := store.Upsert(ctx, []core.Vector{
		vec("doc_a_chunk_1", 1, 0, 0),
		vec("doc_a_chunk_2", 1, 0, 0),
		vec("doc_a_chunk_3", 1, 0, 0),
		vec("doc_b_chunk_1", 0, 1, 0),
	}, "ns", 100)
	require.NoError(t, err)

	result, err := vectorstore.DeleteByDocument(ctx, store, "a", "ns")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Deleted)

	ids, err := vectorstore.ListDocumentIDs(ctx, store, "a", "ns")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = vectorstore.ListDocumentIDs(ctx, store, "b", "ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_b_chunk_1"}, ids)
}

func TestUpdateMetadata_Merges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []core.Vector{vec("doc_a_chunk_1", 1, 0, 0), vec("doc_a_chunk_2", 0, 1, 0)}, "", 100)
	require.NoError(t, err)

	result, err := vectorstore.UpdateMetadataByDocument(ctx, store, "a", "", core.Metadata{
		"category":     core.String("faq"),
		core.KeySource: core.String("manual"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)

	matches, err := store.Query(ctx, vectorstore.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 5, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "manual", m.Source())
		assert.Equal(t, "text of "+m.ID, m.Text(), "untouched keys survive")
		assert.Equal(t, core.String("faq"), m.Metadata["category"])
	}

	t.Run("missing id is ignored", func(t *testing.T) {
		assert.NoError(t, store.UpdateMetadata(ctx, "doc_zzz_chunk_1", core.Metadata{"x": core.Int(1)}, ""))
	})
}

func TestFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []core.Vector{vec("doc_a_chunk_1", 1, 0, 0), vec("doc_a_chunk_2", 0, 1, 0)}, "ns", 100)
	require.NoError(t, err)

	got, err := store.Fetch(ctx, []string{"doc_a_chunk_2", "doc_zzz_chunk_1", "doc_a_chunk_1"}, "ns")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, vec("doc_a_chunk_2", 0, 1, 0), got[0])
	assert.Equal(t, "doc_a_chunk_1", got[1].ID)

	other, err := store.Fetch(ctx, []string{"doc_a_chunk_1"}, "other")
	require.NoError(t, err)
	assert.Empty(t, other, "namespaces are isolated")
}

func TestQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vectors := []core.Vector{
		vec("doc_a_chunk_1", 1, 0, 0),
		vec("doc_a_chunk_2", 0.8, 0.6, 0),
		vec("doc_b_chunk_1", 0, 1, 0),
		vec("doc_c_chunk_1", -1, 0, 0),
	}
	vectors[2].Metadata["year"] = core.Int(2024)
	_, err := store.Upsert(ctx, vectors, "ns", 2)
	require.NoError(t, err)

	t.Run("orders by similarity and truncates", func(t *testing.T) {
		matches, err := store.Query(ctx, vectorstore.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 2, Namespace: "ns"})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "doc_a_chunk_1", matches[0].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
		assert.Equal(t, "doc_a_chunk_2", matches[1].ID)
		assert.InDelta(t, 0.8, matches[1].Score, 1e-6)
		assert.Nil(t, matches[0].Metadata, "metadata is omitted unless requested")
	})

	t.Run("filter", func(t *testing.T) {
		matches, err := store.Query(ctx, vectorstore.QueryRequest{
			Vector:    []float32{1, 0, 0},
			TopK:      10,
			Namespace: "ns",
			Filter:    vectorstore.Filter{"year": map[string]any{"$gte": 2020}},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "doc_b_chunk_1", matches[0].ID)
	})

	t.Run("invalid filter", func(t *testing.T) {
		_, err := store.Query(ctx, vectorstore.QueryRequest{
			Vector: []float32{1, 0, 0}, TopK: 1, Namespace: "ns",
			Filter: vectorstore.Filter{"$xor": []any{}},
		})
		assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
	})

	t.Run("empty namespace", func(t *testing.T) {
		matches, err := store.Query(ctx, vectorstore.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 10, Namespace: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("query dimension", func(t *testing.T) {
		_, err := store.Query(ctx, vectorstore.QueryRequest{Vector: []float32{1, 0}, TopK: 1, Namespace: "ns"})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})
}

func TestDeleteNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []core.Vector{vec("doc_a_chunk_1", 1, 0, 0)}, "ns", 10)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, []core.Vector{vec("doc_a_chunk_1", 1, 0, 0)}, "ns2", 10)
	require.NoError(t, err)

	require.NoError(t, store.DeleteNamespace(ctx, "ns"))

	page, err := store.ListIDs(ctx, "", "ns", "")
	require.NoError(t, err)
	assert.Empty(t, page.IDs)

	page, err = store.ListIDs(ctx, "", "ns2", "")
	require.NoError(t, err)
	assert.Len(t, page.IDs, 1)
}

func TestClosedStore(t *testing.T) {
	store, err := NewMemoryStore(testDim)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "close is idempotent")

	_, err = store.Query(context.Background(), vectorstore.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 1})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestSimilarity(t *testing.T) {
	a := []float32{3, 4}
	assert.InDelta(t, 25.0, similarity(vectorstore.MetricDotProduct, a, a), 1e-9)
	assert.InDelta(t, 1.0, similarity(vectorstore.MetricCosine, a, a), 1e-9)
	assert.InDelta(t, 1.0, similarity(vectorstore.MetricEuclidean, a, a), 1e-9)
	assert.InDelta(t, 1.0/6.0, similarity(vectorstore.MetricEuclidean, a, []float32{0, 0}), 1e-9)
	assert.Zero(t, similarity(vectorstore.MetricCosine, a, []float32{0, 0}))
}
