package openai

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	cfg := ai.NewConfig(
		ai.WithProvider(ai.ProviderOpenAI),
		ai.WithBaseURL("http://localhost:11434"),
		ai.WithEmbeddingModel("nomic-embed-text"),
		ai.WithDimension(768),
	)
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.Reranker())
	assert.Equal(t, 768, p.Embedder().Dimension())
	assert.Equal(t, "nomic-embed-text", p.Embedder().Model())
	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderOpenAI), ai.WithBaseURL(""))
	_, err := NewProvider(cfg)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestEmbedder_CheckDimension(t *testing.T) {
	e := &Embedder{dimension: 3}
	assert.NoError(t, e.checkDimension(0, []float32{1, 2, 3}))
	assert.ErrorIs(t, e.checkDimension(0, []float32{1, 2}), core.ErrConfig)
	assert.ErrorIs(t, e.checkDimension(0, nil), core.ErrProvider)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&net.OpError{Op: "dial", Err: errors.New("refused")}), core.ErrTransport)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), core.ErrTransport)
	assert.ErrorIs(t, classify(errors.New("model not found")), core.ErrProvider)
}
