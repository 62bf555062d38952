// Package mock provides test doubles for the ai package interfaces.
//
// # Usage
//
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "test", ai.InputQuery)
//
//	// Custom behavior injection
//	provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string, _ ai.InputType) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
//	// Deterministic rerank scores by candidate id
//	provider.GetMockReranker().WithScores(map[string]float64{"doc_a_chunk_1": 0.9})
//
// # Default Behavior
//
//   - MockEmbedder: unit vectors derived from an FNV hash of the text
//   - MockReranker: returns candidates unchanged with Status Unranked
//   - MockProvider: aggregates both and counts Close calls
package mock
