package cohere

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
)

const rerankPath = "/v2/rerank"

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Reranker implements ai.Reranker using the Cohere v2 rerank API.
type Reranker struct {
	transport *transport
	model     string
	logger    *slog.Logger
}

func newReranker(cfg *ai.Config, t *transport) *Reranker {
	return &Reranker{
		transport: t,
		model:     cfg.RerankModel,
		logger:    slog.Default().With("component", "cohere-reranker"),
	}
}

// Rerank scores candidates that carry text against query. Any failure
// returns the input unchanged with Status ai.Unranked.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []core.Candidate, topN int) ai.RerankOutcome {
	unranked := func(err error) ai.RerankOutcome {
		return ai.RerankOutcome{Candidates: candidates, Status: ai.Unranked, Err: err}
	}
	if len(candidates) == 0 || topN <= 0 {
		return unranked(nil)
	}

	// positions maps request document index back to the candidate slice.
	var documents []string
	var positions []int
	for i, c := range candidates {
		if text := c.Text(); text != "" {
			documents = append(documents, text)
			positions = append(positions, i)
		}
	}
	if len(documents) == 0 {
		return unranked(nil)
	}

	req := rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      min(topN, len(documents)),
	}
	var resp rerankResponse
	if err := r.transport.postJSON(ctx, rerankPath, req, &resp); err != nil {
		r.logger.Error("reranking failed, returning original order", "err", err)
		return unranked(err)
	}

	ranked := make([]core.Candidate, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(positions) {
			continue
		}
		ranked = append(ranked, candidates[positions[res.Index]].WithRelevanceScore(res.RelevanceScore))
	}
	if len(ranked) == 0 {
		r.logger.Warn("reranker returned no results, returning original order")
		return unranked(fmt.Errorf("%w: rerank returned no results", core.ErrProvider))
	}
	return ai.RerankOutcome{Candidates: ranked, Status: ai.Reranked}
}
