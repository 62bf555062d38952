// Package chunker splits document text into overlapping, sentence-aware
// chunks with stable identifiers.
package chunker

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragpipe/core"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200

	// sentenceWindow is how far before the raw boundary a sentence
	// terminator is searched for.
	sentenceWindow = 100
)

// Chunker walks text in fixed-size windows. It holds no mutable state and
// is safe for concurrent use.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the nominal chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		c.chunkSize = size
		return nil
	}
}

// WithOverlap sets how many characters consecutive chunks share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) error {
		c.overlap = overlap
		return nil
	}
}

// New returns a Chunker. An overlap that is not smaller than the chunk size
// would never advance and is rejected with core.ErrConfig.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfig, c.chunkSize)
	}
	if c.overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", core.ErrConfig, c.overlap)
	}
	if c.overlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", core.ErrConfig, c.overlap, c.chunkSize)
	}
	return c, nil
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }

func (c *Chunker) Overlap() int { return c.overlap }

// ChunkID derives the identifier of the n-th (1-based) chunk of a document.
func ChunkID(docID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, n)
}

// Chunk splits text into chunks for docID. Windows that are not final end
// just after the first '.', '!' or '?' found in their trailing 100
// characters. Windows whose trimmed text is empty produce no chunk.
func (c *Chunker) Chunk(text, docID string) []core.Chunk {
	runes := []rune(text)
	n := len(runes)
	var chunks []core.Chunk

	start := 0
	for start < n {
		end := start + c.chunkSize
		final := end >= n
		if final {
			end = n
		} else {
			searchFrom := max(start+c.chunkSize-sentenceWindow, start)
			for i := searchFrom; i < end; i++ {
				if isSentenceEnd(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			index := len(chunks) + 1
			chunks = append(chunks, core.Chunk{
				ID:        ChunkID(docID, index),
				Text:      trimmed,
				DocID:     docID,
				Index:     index,
				StartChar: start,
				EndChar:   end,
			})
		}

		if final {
			break
		}
		// Overlap never moves the window backward.
		start = max(end-c.overlap, start+1)
	}

	return chunks
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
