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


package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/ragpipe/core"
)

// Provider names accepted by Config.Provider.
const (
	ProviderCohere = "cohere"
	ProviderOpenAI = "openai"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the implementation: "cohere" or "openai".
	Provider string

	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL is the provider API root.
	// Example: "https://api.cohere.com" or "http://localhost:11434/v1"
	BaseURL string

	// EmbeddingModel is the model identifier for text embeddings.
	EmbeddingModel string

	// RerankModel is the model identifier for reranking. Empty disables
	// reranking for providers that support it.
	RerankModel string

	// Dimension is the requested embedding size. It must equal the
	// dimension of the vector index.
	Dimension int

	// Timeout bounds every provider request.
	Timeout time.Duration

	// RequestsPerMinute throttles outbound calls. Zero means unlimited.
	RequestsPerMinute int

	// BreakerMinRequests and BreakerFailureRatio control when the circuit
	// breaker opens; BreakerCooldown is how long it stays open.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerCooldown     time.Duration

	// QueryCacheSize is the number of query embeddings kept in memory.
	// Zero disables the cache.
	QueryCacheSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

func WithProvider(name string) ConfigOption {
	return func(c *Config) {
		c.Provider = name
	}
}

func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

func WithBaseURL(url string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = url
	}
}

func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

func WithRerankModel(model string) ConfigOption {
	return func(c *Config) {
		c.RerankModel = model
	}
}

func WithDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dim
	}
}

func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

func WithRequestsPerMinute(rpm int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerMinute = rpm
	}
}

// WithBreaker sets the circuit breaker thresholds.
func WithBreaker(minRequests uint32, failureRatio float64, cooldown time.Duration) ConfigOption {
	return func(c *Config) {
		c.BreakerMinRequests = minRequests
		c.BreakerFailureRatio = failureRatio
		c.BreakerCooldown = cooldown
	}
}

func WithQueryCacheSize(size int) ConfigOption {
	return func(c *Config) {
		c.QueryCacheSize = size
	}
}

// DefaultConfig returns a Config for Cohere's hosted API. The API key is left
// empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Provider:            ProviderCohere,
		BaseURL:             "https://api.cohere.com",
		EmbeddingModel:      "embed-v4.0",
		RerankModel:         "rerank-v3.5",
		Dimension:           1024,
		Timeout:             30 * time.Second,
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.6,
		BreakerCooldown:     60 * time.Second,
		QueryCacheSize:      256,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithAPIKey(os.Getenv("COHERE_API_KEY")),
//	    WithDimension(1536),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize puts the configuration in canonical form. The OpenAI-compatible
// provider requires a /v1 suffix; Cohere paths carry their own version.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if c.Provider == ProviderOpenAI && c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/v1") {
		c.BaseURL = c.BaseURL + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderCohere:
		if c.APIKey == "" {
			return fmt.Errorf("%w: ai config: APIKey is required", core.ErrConfig)
		}
	case ProviderOpenAI:
	default:
		return fmt.Errorf("%w: ai config: unknown provider %q", core.ErrConfig, c.Provider)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("%w: ai config: BaseURL is required", core.ErrConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: ai config: EmbeddingModel is required", core.ErrConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: ai config: Dimension must be positive", core.ErrConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: ai config: Timeout must be positive", core.ErrConfig)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: ai config: RequestsPerMinute must not be negative", core.ErrConfig)
	}
	if c.BreakerFailureRatio < 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("%w: ai config: BreakerFailureRatio must be between 0 and 1", core.ErrConfig)
	}
	return nil
}
