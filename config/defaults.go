package config

import (
	"time"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/chunker"
	"github.com/poiesic/ragpipe/retrieval"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/poiesic/ragpipe/vectorstore/pinecone"
)

const (
	DefaultIndexName = "farmer-voice-index"
	DefaultNamespace = "farmer-rag"
	DefaultAddr      = ":8000"
	DefaultBadgerDir = "ragpipe-data"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	aiDefaults := ai.DefaultConfig()
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = aiDefaults.Provider
	}
	if cfg.AI.BaseURL == "" && cfg.AI.Provider == ai.ProviderCohere {
		cfg.AI.BaseURL = aiDefaults.BaseURL
	}
	if cfg.AI.EmbeddingModel == "" && cfg.AI.Provider == ai.ProviderCohere {
		cfg.AI.EmbeddingModel = aiDefaults.EmbeddingModel
	}
	if cfg.AI.RerankModel == "" && cfg.AI.Provider == ai.ProviderCohere {
		cfg.AI.RerankModel = aiDefaults.RerankModel
	}
	if cfg.AI.Dimension == 0 {
		cfg.AI.Dimension = aiDefaults.Dimension
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = aiDefaults.Timeout
	}
	if cfg.AI.QueryCacheSize == 0 {
		cfg.AI.QueryCacheSize = aiDefaults.QueryCacheSize
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendPinecone
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = DefaultNamespace
	}
	if cfg.Store.BatchSize == 0 {
		cfg.Store.BatchSize = vectorstore.DefaultBatchSize
	}
	if cfg.Store.Pinecone.IndexName == "" {
		cfg.Store.Pinecone.IndexName = DefaultIndexName
	}
	if cfg.Store.Pinecone.ControlURL == "" {
		cfg.Store.Pinecone.ControlURL = pinecone.DefaultControlURL
	}
	if cfg.Store.Pinecone.Cloud == "" {
		cfg.Store.Pinecone.Cloud = pinecone.DefaultCloud
	}
	if cfg.Store.Pinecone.Region == "" {
		cfg.Store.Pinecone.Region = pinecone.DefaultRegion
	}
	if cfg.Store.Pinecone.Metric == "" {
		cfg.Store.Pinecone.Metric = string(vectorstore.MetricDotProduct)
	}
	if cfg.Store.Pinecone.Timeout == 0 {
		cfg.Store.Pinecone.Timeout = pinecone.DefaultTimeout
	}
	if cfg.Store.Badger.Path == "" && !cfg.Store.Badger.InMemory {
		cfg.Store.Badger.Path = DefaultBadgerDir
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = chunker.DefaultChunkSize
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = chunker.DefaultOverlap
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = retrieval.DefaultTopK
	}
	if cfg.Retrieval.TopN == 0 {
		cfg.Retrieval.TopN = retrieval.DefaultTopN
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = retrieval.DefaultThreshold
	}
	if cfg.Retrieval.MaxChars == 0 {
		cfg.Retrieval.MaxChars = retrieval.DefaultMaxChars
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
}
