package cohere

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
)

const embedPath = "/v2/embed"

type embedRequest struct {
	Model           string   `json:"model"`
	Texts           []string `json:"texts"`
	InputType       string   `json:"input_type"`
	EmbeddingTypes  []string `json:"embedding_types"`
	OutputDimension int      `json:"output_dimension,omitempty"`
}

type embedResponse struct {
	ID         string `json:"id"`
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

// Embedder implements ai.Embedder using the Cohere v2 embed API.
type Embedder struct {
	transport *transport
	model     string
	dimension int
	logger    *slog.Logger
}

func newEmbedder(cfg *ai.Config, t *transport) *Embedder {
	return &Embedder{
		transport: t,
		model:     cfg.EmbeddingModel,
		dimension: cfg.Dimension,
		logger:    slog.Default().With("component", "cohere-embedder"),
	}
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string, inputType ai.InputType) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text}, inputType)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds all texts in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts), "input_type", inputType)

	req := embedRequest{
		Model:           e.model,
		Texts:           texts,
		InputType:       string(inputType),
		EmbeddingTypes:  []string{"float"},
		OutputDimension: e.dimension,
	}
	var resp embedResponse
	if err := e.transport.postJSON(ctx, embedPath, req, &resp); err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	vectors := resp.Embeddings.Float
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no float embeddings returned", core.ErrProvider)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding result mismatch. expected %d, received %d", core.ErrProvider, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, index expects %d", core.ErrConfig, i, len(v), e.dimension)
		}
	}
	return vectors, nil
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Model() string { return e.model }
