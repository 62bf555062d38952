package core

import "encoding/json"

// Chunk is a contiguous slice of a document's text.
// StartChar and EndChar are rune offsets into the source text.
type Chunk struct {
	ID        string // {doc_id}_chunk_{n}
	Text      string // trimmed, never empty
	DocID     string
	Index     int // 1-based
	StartChar int
	EndChar   int
}

// Metadata returns the chunk's own fields as metadata.
func (c Chunk) Metadata() Metadata {
	return Metadata{
		KeyText:       String(c.Text),
		KeyDocID:      String(c.DocID),
		KeyChunkIndex: Int(c.Index),
		KeyStartChar:  Int(c.StartChar),
		KeyEndChar:    Int(c.EndChar),
	}
}

// Vector is the unit persisted in a vector store.
type Vector struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Candidate is a query result in flight between the index and the caller.
// It is never persisted.
type Candidate struct {
	ID       string
	Score    float64 // similarity reported by the index
	Metadata Metadata

	relevance    float64
	hasRelevance bool
}

// RelevanceScore returns the reranker's score, or the similarity score when
// the candidate was never assigned one.
func (c Candidate) RelevanceScore() float64 {
	if c.hasRelevance {
		return c.relevance
	}
	return c.Score
}

// HasRelevanceScore reports whether a relevance score has been assigned.
func (c Candidate) HasRelevanceScore() bool {
	return c.hasRelevance
}

// WithRelevanceScore returns a copy of c carrying score.
func (c Candidate) WithRelevanceScore(score float64) Candidate {
	c.relevance = score
	c.hasRelevance = true
	return c
}

// Text returns the candidate's chunk text.
func (c Candidate) Text() string {
	return c.Metadata.Text()
}

// Source returns the candidate's source metadata, or "" when absent.
func (c Candidate) Source() string {
	return c.Metadata.Source()
}

type candidateJSON struct {
	ID             string   `json:"id"`
	Score          float64  `json:"score"`
	RelevanceScore float64  `json:"relevance_score"`
	Metadata       Metadata `json:"metadata"`
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	md := c.Metadata
	if md == nil {
		md = Metadata{}
	}
	return json.Marshal(candidateJSON{
		ID:             c.ID,
		Score:          c.Score,
		RelevanceScore: c.RelevanceScore(),
		Metadata:       md,
	})
}
