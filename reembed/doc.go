// Package reembed re-embeds the stored chunks of a namespace with the
// current embedder, typically after the embedding model changed.
//
// Chunks are read back from the store, so their text must have been stored
// in metadata at upload time. Vectors keep their ids and metadata; only
// their values and the embedding stamps change. The collection dimension is
// fixed, so a model with a different dimension needs a fresh index and a
// full re-upload instead.
package reembed
