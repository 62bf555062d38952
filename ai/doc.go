// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the external model services used by
// the retrieval pipeline: text embedding and reranking.
//
// The pipeline depends only on the interfaces in this package:
//
//   - Embedder: converts text to fixed-dimension vectors
//   - Reranker: reorders candidates against a query, degrading to the
//     original order instead of failing
//   - Provider: owns both services and their shared connection resource
//
// # Implementation Packages
//
//   - ai/cohere: Cohere v2 embed and rerank over a shared HTTP client with a
//     circuit breaker and request rate limiter
//   - ai/openai: OpenAI-compatible embeddings through langchaingo (no rerank)
//   - ai/mock: test doubles
//
// Public constructors return interface types. Mock constructors return
// concrete types so tests can inject behavior and read call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAPIKey(os.Getenv("COHERE_API_KEY")))
//	provider, err := cohere.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "refund policy", ai.InputQuery)
package ai
