// Package config loads application settings for the ragpipe CLI and server.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// an optional .env file, then the process environment. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/poiesic/ragpipe/vectorstore/pinecone"
	"gopkg.in/yaml.v3"
)

// Store backends accepted by StoreConfig.Backend.
const (
	BackendPinecone = "pinecone"
	BackendBadger   = "badger"
)

// Config holds all configuration for the application.
type Config struct {
	AI        AIConfig        `yaml:"ai"`
	Store     StoreConfig     `yaml:"store"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
}

// AIConfig selects the embedding and rerank provider.
type AIConfig struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	RerankModel       string        `yaml:"rerank_model"`
	Dimension         int           `yaml:"dimension"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	QueryCacheSize    int           `yaml:"query_cache_size"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Backend   string         `yaml:"backend"`
	Namespace string         `yaml:"namespace"`
	BatchSize int            `yaml:"batch_size"`
	Pinecone  PineconeConfig `yaml:"pinecone"`
	Badger    BadgerConfig   `yaml:"badger"`
}

// PineconeConfig holds hosted index settings.
type PineconeConfig struct {
	APIKey     string        `yaml:"api_key"`
	IndexName  string        `yaml:"index_name"`
	Host       string        `yaml:"host"`
	ControlURL string        `yaml:"control_url"`
	Cloud      string        `yaml:"cloud"`
	Region     string        `yaml:"region"`
	Metric     string        `yaml:"metric"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BadgerConfig holds embedded store settings.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// ChunkingConfig holds chunk window settings, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds query defaults.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	TopN      int     `yaml:"top_n"`
	Threshold float64 `yaml:"threshold"`
	MaxChars  int     `yaml:"max_chars"`
	Rerank    *bool   `yaml:"rerank"`
}

// RerankOrDefault reports whether queries are reranked; defaults to true when unset.
func (r *RetrievalConfig) RerankOrDefault() bool {
	if r.Rerank != nil {
		return *r.Rerank
	}
	return true
}

// ServerConfig holds HTTP front door settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Load builds a Config from the YAML file at path and the .env file at
// envFile, then applies environment overrides and defaults. Either path may
// be empty. A missing .env file is ignored; a missing YAML file is an error.
func Load(path, envFile string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("error loading %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks that cfg describes a usable pipeline.
func (c *Config) Validate() error {
	if err := c.AIConfig().Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendPinecone:
		if err := c.PineconeConfig().Validate(); err != nil {
			return err
		}
	case BackendBadger:
		if c.Store.Badger.Path == "" && !c.Store.Badger.InMemory {
			return fmt.Errorf("%w: badger store needs a path or in_memory", core.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", core.ErrConfig, c.Store.Backend)
	}

	if c.Store.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", core.ErrConfig)
	}
	if c.Store.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", core.ErrConfig)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", core.ErrConfig, c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopN <= 0 {
		return fmt.Errorf("%w: top_k and top_n must be positive", core.ErrConfig)
	}
	return nil
}

// AIConfig converts the provider section to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.AI.Provider),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithBaseURL(c.AI.BaseURL),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithRerankModel(c.AI.RerankModel),
		ai.WithDimension(c.AI.Dimension),
		ai.WithTimeout(c.AI.Timeout),
		ai.WithRequestsPerMinute(c.AI.RequestsPerMinute),
		ai.WithQueryCacheSize(c.AI.QueryCacheSize),
	)
}

// PineconeConfig converts the pinecone section to a pinecone.Config.
func (c *Config) PineconeConfig() *pinecone.Config {
	p := c.Store.Pinecone
	return &pinecone.Config{
		APIKey:     p.APIKey,
		IndexName:  p.IndexName,
		ControlURL: p.ControlURL,
		Host:       p.Host,
		Cloud:      p.Cloud,
		Region:     p.Region,
		Metric:     vectorstore.Metric(p.Metric),
		APIVersion: pinecone.DefaultAPIVersion,
		Timeout:    p.Timeout,
	}
}

// CollectionSpec describes the index the pipeline expects.
func (c *Config) CollectionSpec() vectorstore.CollectionSpec {
	return vectorstore.CollectionSpec{
		Name:      c.Store.Pinecone.IndexName,
		Dimension: c.AI.Dimension,
		Metric:    vectorstore.Metric(c.Store.Pinecone.Metric),
		Cloud:     c.Store.Pinecone.Cloud,
		Region:    c.Store.Pinecone.Region,
	}
}
