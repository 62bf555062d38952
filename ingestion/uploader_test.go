package ingestion

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/ai/mock"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/poiesic/ragpipe/vectorstore/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNamespace = "test"

func setupUploader(t *testing.T, opts ...Option) (*Uploader, *mock.MockEmbedder, *badger.Store) {
	t.Helper()
	store, err := badger.NewMemoryStore(mock.DefaultDimension)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedder()
	opts = append([]Option{WithNamespace(testNamespace)}, opts...)
	u, err := NewUploader(embedder, store, opts...)
	require.NoError(t, err)
	t.Cleanup(u.Close)

	u.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return u, embedder, store
}

// storedVectors returns every vector of docID with its metadata, keyed by id.
func storedVectors(t *testing.T, store vectorstore.Store, docID string) map[string]core.Metadata {
	t.Helper()
	cands, err := store.Query(context.Background(), vectorstore.QueryRequest{
		Vector:          mock.DeterministicVector("probe", mock.DefaultDimension),
		TopK:            1000,
		Namespace:       testNamespace,
		Filter:          vectorstore.Filter{core.KeyDocID: docID},
		IncludeMetadata: true,
	})
	require.NoError(t, err)

	out := make(map[string]core.Metadata, len(cands))
	for _, c := range cands {
		out[c.ID] = c.Metadata
	}
	return out
}

func TestNewUploader(t *testing.T) {
	store, err := badger.NewMemoryStore(mock.DefaultDimension)
	require.NoError(t, err)
	defer store.Close()

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewUploader(nil, store)
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewUploader(mock.NewMockEmbedder(), nil)
		assert.ErrorIs(t, err, ErrStoreRequired)
	})

	t.Run("invalid batch size", func(t *testing.T) {
		_, err := NewUploader(mock.NewMockEmbedder(), store, WithBatchSize(0))
		assert.ErrorIs(t, err, core.ErrConfig)
	})

	t.Run("defaults", func(t *testing.T) {
		u, err := NewUploader(mock.NewMockEmbedder(), store)
		require.NoError(t, err)
		defer u.Close()
		assert.Equal(t, vectorstore.DefaultBatchSize, u.batchSize)
		assert.Equal(t, "", u.Namespace())
		assert.NotNil(t, u.pool)
	})
}

func TestUpload_ThreeChunks(t *testing.T) {
	u, embedder, store := setupUploader(t, WithBatchSize(2))
	ctx := context.Background()

	docID, err := u.Upload(ctx, strings.Repeat("x", 2400), WithDocumentID("farm1"),
		WithMetadata(core.Metadata{core.KeySource: core.String("faq")}))
	require.NoError(t, err)
	assert.Equal(t, "farm1", docID)

	assert.Equal(t, 1, embedder.CallCount(), "all chunks are embedded in one call")
	assert.Equal(t, ai.InputDocument, embedder.LastInputType())

	stored := storedVectors(t, store, "farm1")
	require.Len(t, stored, 3)
	for i, id := range []string{"doc_farm1_chunk_1", "doc_farm1_chunk_2", "doc_farm1_chunk_3"} {
		md, ok := stored[id]
		require.True(t, ok, id)

		index, _ := md[core.KeyChunkIndex].AsNumber()
		start, _ := md[core.KeyStartChar].AsNumber()
		end, _ := md[core.KeyEndChar].AsNumber()
		assert.Equal(t, float64(i+1), index)
		assert.LessOrEqual(t, end-start, 1100.0)
		assert.Equal(t, "farm1", md.DocID())
		assert.Equal(t, "faq", md.Source())
		assert.NotEmpty(t, md.Text())

		assert.Equal(t, core.String("mock-embedder"), md[KeyEmbeddingModel])
		assert.Equal(t, core.Int(mock.DefaultDimension), md[KeyEmbeddingDimensions])
		assert.Equal(t, core.String("2025-03-01T12:00:00Z"), md[KeyUploadedAt])
		assert.Equal(t, core.String(core.ContentHash(strings.Repeat("x", 2400))), md[KeyContentHash])
	}
}

func TestUpload_ChunkFieldsWin(t *testing.T) {
	u, _, store := setupUploader(t)

	_, err := u.Upload(context.Background(), "Sustainable farming matters.", WithDocumentID("d1"),
		WithMetadata(core.Metadata{
			core.KeyText:       core.String("overridden"),
			core.KeyDocID:      core.String("other"),
			core.KeyChunkIndex: core.Int(99),
			"category":         core.String("farming"),
		}))
	require.NoError(t, err)

	stored := storedVectors(t, store, "d1")
	require.Len(t, stored, 1)
	md := stored["doc_d1_chunk_1"]
	assert.Equal(t, "Sustainable farming matters.", md.Text())
	assert.Equal(t, "d1", md.DocID())
	assert.Equal(t, core.Int(1), md[core.KeyChunkIndex])
	assert.Equal(t, core.String("farming"), md["category"])
}

func TestUpload_GeneratesID(t *testing.T) {
	u, _, store := setupUploader(t)

	docID, err := u.Upload(context.Background(), "generated id document")
	require.NoError(t, err)
	require.NoError(t, core.ValidateDocumentID(docID))
	assert.Len(t, storedVectors(t, store, docID), 1)
}

func TestUpload_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid document id", func(t *testing.T) {
		u, embedder, _ := setupUploader(t)
		_, err := u.Upload(ctx, "text", WithDocumentID("bad_id"))
		assert.ErrorIs(t, err, core.ErrInvalidDocumentID)
		assert.Equal(t, 0, embedder.CallCount())
	})

	t.Run("empty document", func(t *testing.T) {
		u, embedder, _ := setupUploader(t)
		_, err := u.Upload(ctx, "  \n ", WithDocumentID("empty"))
		assert.ErrorIs(t, err, ErrEmptyDocument)
		assert.Equal(t, 0, embedder.CallCount())
	})

	t.Run("no embeddings", func(t *testing.T) {
		u, embedder, store := setupUploader(t)
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error) {
			return nil, nil
		}
		_, err := u.Upload(ctx, "some text", WithDocumentID("none"))
		assert.ErrorIs(t, err, core.ErrProvider)
		assert.Empty(t, storedVectors(t, store, "none"))
	})

	t.Run("count mismatch", func(t *testing.T) {
		u, embedder, store := setupUploader(t)
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error) {
			return [][]float32{mock.DeterministicVector("a", mock.DefaultDimension)}, nil
		}
		_, err := u.Upload(ctx, strings.Repeat("y", 2400), WithDocumentID("short"))
		assert.ErrorIs(t, err, core.ErrProvider)
		assert.Empty(t, storedVectors(t, store, "short"))
	})

	t.Run("embedder failure", func(t *testing.T) {
		u, embedder, _ := setupUploader(t)
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error) {
			return nil, core.ErrTransport
		}
		docID, err := u.Upload(ctx, "text", WithDocumentID("down"))
		assert.ErrorIs(t, err, core.ErrTransport)
		assert.Equal(t, "down", docID)
	})

	t.Run("wrong dimension", func(t *testing.T) {
		u, embedder, _ := setupUploader(t)
		embedder.WithDimension(4)
		_, err := u.Upload(ctx, "text", WithDocumentID("dim"))
		var batchErr *vectorstore.BatchError
		require.True(t, errors.As(err, &batchErr))
		assert.Equal(t, 0, batchErr.Upserted)
	})
}

func TestUpload_Replace(t *testing.T) {
	u, _, store := setupUploader(t)
	ctx := context.Background()

	_, err := u.Upload(ctx, strings.Repeat("x", 2400), WithDocumentID("doc"))
	require.NoError(t, err)
	require.Len(t, storedVectors(t, store, "doc"), 3)

	t.Run("without replace old chunks remain", func(t *testing.T) {
		_, err := u.Upload(ctx, "short version", WithDocumentID("doc"))
		require.NoError(t, err)
		assert.Len(t, storedVectors(t, store, "doc"), 3)
	})

	t.Run("with replace old chunks are removed", func(t *testing.T) {
		_, err := u.Upload(ctx, "short version", WithDocumentID("doc"), WithReplace())
		require.NoError(t, err)
		stored := storedVectors(t, store, "doc")
		require.Len(t, stored, 1)
		assert.Equal(t, "short version", stored["doc_doc_chunk_1"].Text())
	})
}

func TestDeleteAndUpdate(t *testing.T) {
	u, _, store := setupUploader(t)
	ctx := context.Background()

	_, err := u.Upload(ctx, strings.Repeat("x", 2400), WithDocumentID("a"))
	require.NoError(t, err)
	_, err = u.Upload(ctx, "neighbour document", WithDocumentID("ab"))
	require.NoError(t, err)

	updated, err := u.UpdateMetadata(ctx, "a", core.Metadata{"reviewed": core.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, vectorstore.UpdateResult{Matched: 3, Updated: 3}, updated)
	for _, md := range storedVectors(t, store, "a") {
		assert.Equal(t, core.Bool(true), md["reviewed"])
	}
	for _, md := range storedVectors(t, store, "ab") {
		_, ok := md["reviewed"]
		assert.False(t, ok, "sibling document must not be patched")
	}

	deleted, err := u.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, vectorstore.DeleteResult{Matched: 3, Deleted: 3}, deleted)
	assert.Empty(t, storedVectors(t, store, "a"))
	assert.Len(t, storedVectors(t, store, "ab"), 1)

	t.Run("unknown document", func(t *testing.T) {
		deleted, err := u.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, 0, deleted.Deleted)
	})

	t.Run("delete all", func(t *testing.T) {
		require.NoError(t, u.DeleteAll(ctx))
		assert.Empty(t, storedVectors(t, store, "ab"))
	})
}

func TestUploadFile(t *testing.T) {
	u, _, store := setupUploader(t)
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("utf-8 with file metadata", func(t *testing.T) {
		path := filepath.Join(dir, "notes.md")
		require.NoError(t, os.WriteFile(path, []byte("Crop rotation improves soil."), 0o644))

		docID, err := u.UploadFile(ctx, path, WithDocumentID("notes"))
		require.NoError(t, err)
		assert.Equal(t, "notes", docID)

		md := storedVectors(t, store, "notes")["doc_notes_chunk_1"]
		assert.Equal(t, core.String("notes.md"), md[KeyFileName])
		assert.Equal(t, core.String(path), md[KeyFilePath])
		assert.Equal(t, core.Int(28), md[KeyFileSize])
		assert.Equal(t, core.String(".md"), md[KeyFileExtension])
		assert.Equal(t, "notes.md", md.Source())
	})

	t.Run("latin-1 fallback", func(t *testing.T) {
		path := filepath.Join(dir, "legacy.txt")
		require.NoError(t, os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0o644))

		_, err := u.UploadFile(ctx, path, WithDocumentID("legacy"))
		require.NoError(t, err)
		assert.Equal(t, "café", storedVectors(t, store, "legacy")["doc_legacy_chunk_1"].Text())
	})

	t.Run("caller metadata overrides file metadata", func(t *testing.T) {
		path := filepath.Join(dir, "guide.txt")
		require.NoError(t, os.WriteFile(path, []byte("Irrigation guide."), 0o644))

		_, err := u.UploadFile(ctx, path, WithDocumentID("guide"),
			WithMetadata(core.Metadata{core.KeySource: core.String("manual")}))
		require.NoError(t, err)
		assert.Equal(t, "manual", storedVectors(t, store, "guide")["doc_guide_chunk_1"].Source())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := u.UploadFile(ctx, filepath.Join(dir, "nope.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestUploadDirectory(t *testing.T) {
	var progress bytes.Buffer
	u, _, store := setupUploader(t, WithPoolSize(2), WithProgress(&progress))
	ctx := context.Background()

	dir := t.TempDir()
	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("a.txt", "First file.")
	write("b.MD", "Second file.")
	write("image.bin", "ignored")
	write("sub/c.txt", "Nested file.")
	write("empty.txt", "   ")

	results, err := u.UploadDirectory(ctx, dir)
	require.NoError(t, err)
	require.Len(t, results, 4)

	byName := make(map[string]FileResult)
	for _, r := range results {
		byName[filepath.Base(r.File)] = r
	}
	assert.NotContains(t, byName, "image.bin")
	assert.ErrorIs(t, byName["empty.txt"].Err, ErrEmptyDocument)
	for _, name := range []string{"a.txt", "b.MD", "c.txt"} {
		r := byName[name]
		require.NoError(t, r.Err, name)
		assert.Len(t, storedVectors(t, store, r.DocID), 1, name)
	}

	assert.Contains(t, progress.String(), "4/4 files")

	t.Run("explicit extensions", func(t *testing.T) {
		results, err := u.UploadDirectory(ctx, dir, "bin")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "image.bin", filepath.Base(results[0].File))
	})

	t.Run("not a directory", func(t *testing.T) {
		_, err := u.UploadDirectory(ctx, filepath.Join(dir, "a.txt"))
		assert.ErrorIs(t, err, ErrNotDirectory)
	})

	t.Run("works again after close", func(t *testing.T) {
		u.Close()
		assert.Nil(t, u.pool)

		results, err := u.UploadDirectory(ctx, dir, "md")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NoError(t, results[0].Err)
		assert.NotNil(t, u.pool)
	})
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 5)

	tracker.Increment(3)
	assert.Empty(t, buf.String(), "nothing is reported before Start")

	tracker.Start()
	tracker.Increment(3)
	assert.Empty(t, buf.String())
	tracker.Increment(3)
	assert.Contains(t, buf.String(), "6/10")

	tracker.Increment(50)
	assert.Equal(t, 10, tracker.Current())

	tracker.Finish()
	assert.Contains(t, buf.String(), "10/10 files (100.0%)")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var relabelled bytes.Buffer
	other := NewProgressTracker(&relabelled, 2, 1).WithLabel("Re-embedded", "vectors")
	other.Start()
	other.Increment(1)
	assert.Contains(t, relabelled.String(), "Re-embedded 1/2 vectors (50.0%)")
}
