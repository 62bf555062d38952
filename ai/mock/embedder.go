package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/ragpipe/ai"
)

// DefaultDimension is the vector size produced by MockEmbedder by default.
const DefaultDimension = 8

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string, inputType ai.InputType) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error)

	dimension int
	mu        sync.Mutex
	callCount int
	lastType  ai.InputType
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dimension: DefaultDimension}
}

// WithDimension changes the size of generated vectors.
func (m *MockEmbedder) WithDimension(dim int) *MockEmbedder {
	m.dimension = dim
	return m
}

func (m *MockEmbedder) record(inputType ai.InputType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.lastType = inputType
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string, inputType ai.InputType) ([]float32, error) {
	m.record(inputType)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text, inputType)
	}
	return DeterministicVector(text, m.dimension), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error) {
	m.record(inputType)

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts, inputType)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = DeterministicVector(text, m.dimension)
	}
	return embeddings, nil
}

func (m *MockEmbedder) Dimension() int { return m.dimension }

func (m *MockEmbedder) Model() string { return "mock-embedder" }

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastInputType returns the input type of the most recent call.
func (m *MockEmbedder) LastInputType() ai.InputType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastType
}

// Reset clears the call count and injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastType = ""
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// DeterministicVector creates a unit-length vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float32
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
		sumSquares += vector[i] * vector[i]
	}

	norm := float32(math.Sqrt(float64(sumSquares)))
	for i := range vector {
		vector[i] /= norm
	}
	return vector
}
