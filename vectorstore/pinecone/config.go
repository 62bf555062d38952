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


package pinecone

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
)

const (
	DefaultControlURL = "https://api.pinecone.io"
	DefaultCloud      = "aws"
	DefaultRegion     = "us-east-1"
	DefaultAPIVersion = "2024-07"
	DefaultTimeout    = 30 * time.Second
)

// Config holds the connection settings of a Pinecone index.
type Config struct {
	APIKey    string
	IndexName string

	// ControlURL is the control-plane endpoint used to list, describe and
	// create indexes.
	ControlURL string

	// Host is the data-plane endpoint of the index. When empty it is
	// resolved from the index description on first use.
	Host string

	// Cloud, Region and Metric are used only when the index is created.
	Cloud  string
	Region string
	Metric vectorstore.Metric

	APIVersion string
	Timeout    time.Duration
}

// DefaultConfig returns a config with the service defaults. APIKey and
// IndexName must still be set.
func DefaultConfig() *Config {
	return &Config{
		ControlURL: DefaultControlURL,
		Cloud:      DefaultCloud,
		Region:     DefaultRegion,
		Metric:     vectorstore.MetricDotProduct,
		APIVersion: DefaultAPIVersion,
		Timeout:    DefaultTimeout,
	}
}

// Validate checks that the config can reach an index.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: pinecone config: APIKey is required", core.ErrConfig)
	}
	if c.IndexName == "" {
		return fmt.Errorf("%w: pinecone config: IndexName is required", core.ErrConfig)
	}
	if c.ControlURL == "" && c.Host == "" {
		return fmt.Errorf("%w: pinecone config: ControlURL or Host is required", core.ErrConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: pinecone config: Timeout must be positive", core.ErrConfig)
	}
	if c.Metric != "" {
		if err := c.Metric.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// hostURL adds a scheme to a bare data-plane host.
func hostURL(host string) string {
	host = strings.TrimSuffix(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}
