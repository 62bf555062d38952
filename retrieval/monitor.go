package retrieval

import (
	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
)

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type Monitor interface {
	Start(query string)
	AfterEmbedding(vector []float32)
	AfterQuery(matches []core.Candidate)
	AfterDedupe(unique []core.Candidate)
	AfterRerank(outcome ai.RerankOutcome)
	ThresholdFallback(reranked []core.Candidate)
	Finish(result RetrieveResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                       {}
func (n *noopMonitor) AfterEmbedding(_ []float32)           {}
func (n *noopMonitor) AfterQuery(_ []core.Candidate)        {}
func (n *noopMonitor) AfterDedupe(_ []core.Candidate)       {}
func (n *noopMonitor) AfterRerank(_ ai.RerankOutcome)       {}
func (n *noopMonitor) ThresholdFallback(_ []core.Candidate) {}
func (n *noopMonitor) Finish(_ RetrieveResult)              {}
