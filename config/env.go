package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
)

// applyEnv overlays environment variables onto cfg. Unset or empty
// variables leave the current value alone.
func applyEnv(cfg *Config) error {
	setString(&cfg.AI.Provider, "AI_PROVIDER")
	setString(&cfg.AI.BaseURL, "AI_BASE_URL")
	setString(&cfg.AI.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&cfg.AI.RerankModel, "RERANK_MODEL")

	// The API key variable follows the provider.
	keyVar := "COHERE_API_KEY"
	if cfg.AI.Provider == ai.ProviderOpenAI {
		keyVar = "OPENAI_API_KEY"
	}
	setString(&cfg.AI.APIKey, keyVar)

	setString(&cfg.Store.Backend, "VECTOR_STORE")
	setString(&cfg.Store.Namespace, "PINECONE_NAMESPACE")
	setString(&cfg.Store.Pinecone.APIKey, "PINECONE_API_KEY")
	setString(&cfg.Store.Pinecone.IndexName, "PINECONE_INDEX_NAME")
	setString(&cfg.Store.Pinecone.Host, "PINECONE_HOST")
	setString(&cfg.Store.Pinecone.Cloud, "PINECONE_CLOUD")
	setString(&cfg.Store.Pinecone.Region, "PINECONE_ENVIRONMENT")
	setString(&cfg.Store.Badger.Path, "BADGER_PATH")
	setString(&cfg.Server.Addr, "RAGPIPE_ADDR")

	if err := setInt(&cfg.AI.Dimension, "EMBEDDING_DIMENSION"); err != nil {
		return err
	}
	if err := setInt(&cfg.Chunking.Size, "CHUNK_SIZE"); err != nil {
		return err
	}
	return setInt(&cfg.Chunking.Overlap, "CHUNK_OVERLAP")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", core.ErrConfig, key, value)
	}
	*dst = n
	return nil
}
