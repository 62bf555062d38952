package retrieval

import (
	"context"

	"github.com/poiesic/ragpipe/core"
)

// SearchResult is one ranked entry of a SearchResponse.
type SearchResult struct {
	Rank           int           `json:"rank"`
	ID             string        `json:"id"`
	Text           string        `json:"text"`
	Source         string        `json:"source"`
	RelevanceScore float64       `json:"relevance_score"`
	Metadata       core.Metadata `json:"metadata"`
}

// SearchResponse is the tool-facing form of a retrieval. Error is set
// instead of returning one.
type SearchResponse struct {
	Query        string         `json:"query"`
	TotalResults int            `json:"total_results"`
	Results      []SearchResult `json:"results"`
	Error        string         `json:"error,omitempty"`
}

// SearchDocuments retrieves with top_k 6 and top_n 3 unless overridden and
// shapes the result for an agent tool call. It never fails.
func (r *Retriever) SearchDocuments(ctx context.Context, query string, opts ...QueryOption) SearchResponse {
	o := defaultQueryOptions()
	o.topK = DefaultSearchTopK
	o.topN = DefaultSearchTopN
	for _, opt := range opts {
		opt(o)
	}

	resp := SearchResponse{Query: query, Results: []SearchResult{}}
	result, err := r.retrieve(ctx, query, o)
	if err != nil {
		r.logger.Error("search documents failed", "err", err)
		resp.Error = err.Error()
		return resp
	}

	for i, c := range result.Candidates {
		id := c.ID
		if id == "" {
			id = unknownSource
		}
		source := c.Source()
		if source == "" {
			source = unknownSource
		}
		md := c.Metadata
		if md == nil {
			md = core.Metadata{}
		}
		resp.Results = append(resp.Results, SearchResult{
			Rank:           i + 1,
			ID:             id,
			Text:           c.Text(),
			Source:         source,
			RelevanceScore: c.RelevanceScore(),
			Metadata:       md,
		})
	}
	resp.TotalResults = len(resp.Results)
	return resp
}
