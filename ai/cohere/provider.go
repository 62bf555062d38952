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

package cohere

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/ragpipe/ai"
)

// Provider implements ai.Provider using Cohere. The embedder and reranker
// share one HTTP client, rate limiter and circuit breaker.
type Provider struct {
	client   *SharedClient
	embedder *Embedder
	reranker *Reranker
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*providerOptions)

type providerOptions struct {
	transport http.RoundTripper
}

// WithRoundTripper replaces the HTTP transport, mainly for tests.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *providerOptions) {
		o.transport = rt
	}
}

// NewProvider creates a Cohere provider. The config is validated and
// normalized before use. No connection is opened until the first call.
func NewProvider(config *ai.Config, opts ...Option) (ai.Provider, error) {
	return newProvider(config, opts...)
}

func newProvider(config *ai.Config, opts ...Option) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	options := &providerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := slog.Default().With("component", "cohere-provider")
	client := NewSharedClient(config.Timeout, options.transport)
	t := newTransport(config, client, logger)

	p := &Provider{
		client:   client,
		embedder: newEmbedder(config, t),
		logger:   logger,
	}
	if config.RerankModel != "" {
		p.reranker = newReranker(config, t)
	}
	return p, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Reranker returns nil when no rerank model is configured.
func (p *Provider) Reranker() ai.Reranker {
	if p.reranker == nil {
		return nil
	}
	return p.reranker
}

// Close releases the shared HTTP client. The provider stays usable and
// re-acquires a client on the next call.
func (p *Provider) Close() error {
	p.logger.Debug("closing cohere provider")
	return p.client.Close()
}
