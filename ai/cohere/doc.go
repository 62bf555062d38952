// Package cohere implements the ai interfaces against Cohere's v2 API.
//
// Embeddings use POST /v2/embed with embedding_types ["float"] and an explicit
// output_dimension. Reranking uses POST /v2/rerank. Both calls go through one
// lazily created HTTP client guarded by a request rate limiter and a circuit
// breaker. An open breaker surfaces as core.ErrTransport.
package cohere
