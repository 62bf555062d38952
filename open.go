package ragpipe

import (
	"context"
	"fmt"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/ai/cohere"
	"github.com/poiesic/ragpipe/ai/openai"
	"github.com/poiesic/ragpipe/config"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/poiesic/ragpipe/vectorstore/badger"
	"github.com/poiesic/ragpipe/vectorstore/pinecone"
)

// Open builds a pipeline from application config. The embedded badger
// store has its collection ensured immediately; a hosted index is only
// created by an explicit EnsureIndex. opts are applied after the values
// taken from cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := NewProvider(cfg.AIConfig())
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		provider.Close()
		return nil, err
	}

	base := []Option{
		WithNamespace(cfg.Store.Namespace),
		WithCollectionSpec(cfg.CollectionSpec()),
		WithChunking(cfg.Chunking.Size, cfg.Chunking.Overlap),
		WithBatchSize(cfg.Store.BatchSize),
		WithQueryCacheSize(cfg.AI.QueryCacheSize),
	}
	p, err := New(provider, store, append(base, opts...)...)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, err
	}

	if cfg.Store.Backend == config.BackendBadger {
		if err := p.EnsureIndex(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

// NewProvider creates the provider named by aiConfig.Provider.
func NewProvider(aiConfig *ai.Config) (ai.Provider, error) {
	if err := aiConfig.Validate(); err != nil {
		return nil, err
	}
	switch aiConfig.Provider {
	case ai.ProviderCohere:
		return cohere.NewProvider(aiConfig)
	case ai.ProviderOpenAI:
		return openai.NewProvider(aiConfig)
	}
	return nil, fmt.Errorf("%w: unknown provider %q", core.ErrConfig, aiConfig.Provider)
}

func openStore(cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPinecone:
		store, err := pinecone.NewStore(cfg.PineconeConfig())
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendBadger:
		store, err := badger.Open(cfg.Store.Badger.Path, cfg.Store.Badger.InMemory)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", core.ErrConfig, cfg.Store.Backend)
}
