// Package openai provides an ai.Provider backed by any OpenAI-compatible
// embeddings endpoint (OpenAI, Ollama, LocalAI, vLLM) through langchaingo.
//
// # Configuration
//
//	cfg := ai.NewConfig(
//	    ai.WithProvider(ai.ProviderOpenAI),
//	    ai.WithBaseURL("http://localhost:11434"), // /v1 added automatically
//	    ai.WithEmbeddingModel("nomic-embed-text"),
//	    ai.WithDimension(768),
//	)
//	provider, err := openai.NewProvider(cfg)
//
// The provider has no reranker; retrieval falls back to similarity order.
package openai
