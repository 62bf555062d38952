package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// Query and document embeddings are not distinguished by these APIs, so
// inputType only selects between EmbedQuery and EmbedDocuments.
type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible servers accept any token.
	token := config.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}

	return &Embedder{
		embedder:  embedder,
		model:     config.EmbeddingModel,
		dimension: config.Dimension,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string, inputType ai.InputType) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	if inputType == ai.InputQuery {
		vector, err := e.embedder.EmbedQuery(ctx, text)
		if err != nil {
			e.logger.Error("failed to generate embedding", "err", err)
			return nil, classify(err)
		}
		if err := e.checkDimension(0, vector); err != nil {
			return nil, err
		}
		return vector, nil
	}

	vectors, err := e.EmbedTexts(ctx, []string{text}, inputType)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, inputType ai.InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts), "input_type", inputType)

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, classify(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding result mismatch. expected %d, received %d", core.ErrProvider, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if err := e.checkDimension(i, v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Model() string { return e.model }

func (e *Embedder) checkDimension(i int, v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: embedding %d is empty", core.ErrProvider, i)
	}
	if len(v) != e.dimension {
		return fmt.Errorf("%w: embedding %d has dimension %d, index expects %d", core.ErrConfig, i, len(v), e.dimension)
	}
	return nil
}

// classify maps client errors onto the pipeline taxonomy.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return fmt.Errorf("%w: %w", core.ErrProvider, err)
}
