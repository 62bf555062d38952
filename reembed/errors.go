package reembed

import "errors"

var (
	// ErrDimensionChanged is returned when the embedder's dimension differs
	// from that of the stored vectors.
	ErrDimensionChanged = errors.New("embedding dimension differs from stored vectors")

	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrStoreRequired is returned when no store is given.
	ErrStoreRequired = errors.New("vector store required")
)
