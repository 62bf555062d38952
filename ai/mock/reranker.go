package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
)

// MockReranker is a test double for ai.Reranker.
type MockReranker struct {
	// RerankFunc is called by Rerank if set. If nil, candidates come back
	// in their original order with Status Unranked.
	RerankFunc func(ctx context.Context, query string, candidates []core.Candidate, topN int) ai.RerankOutcome

	mu        sync.Mutex
	callCount int
}

func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

func (m *MockReranker) Rerank(ctx context.Context, query string, candidates []core.Candidate, topN int) ai.RerankOutcome {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, candidates, topN)
	}
	return ai.RerankOutcome{Candidates: candidates, Status: ai.Unranked}
}

// WithScores makes the reranker assign scores by candidate id and order the
// candidates by them, keeping at most topN. Ids missing from scores are dropped.
func (m *MockReranker) WithScores(scores map[string]float64) *MockReranker {
	m.RerankFunc = func(_ context.Context, _ string, candidates []core.Candidate, topN int) ai.RerankOutcome {
		var out []core.Candidate
		for _, c := range candidates {
			if s, ok := scores[c.ID]; ok {
				out = append(out, c.WithRelevanceScore(s))
			}
		}
		sortByRelevance(out)
		if len(out) > topN {
			out = out[:topN]
		}
		return ai.RerankOutcome{Candidates: out, Status: ai.Reranked}
	}
	return m
}

func (m *MockReranker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func sortByRelevance(cs []core.Candidate) {
	slices.SortStableFunc(cs, func(a, b core.Candidate) int {
		return cmp.Compare(b.RelevanceScore(), a.RelevanceScore())
	})
}
