package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/ragpipe/core"
)

// APIError is a non-success response from Pinecone.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pinecone API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("pinecone API error: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap reports server-side and throttling failures as an unavailable
// store. Client errors stay distinct.
func (e *APIError) Unwrap() error {
	if e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests {
		return core.ErrStoreUnavailable
	}
	return nil
}

type client struct {
	http       *http.Client
	apiKey     string
	apiVersion string
	logger     *slog.Logger
}

// call sends a JSON request and decodes a 2xx response into out, which may
// be nil.
func (c *client) call(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("X-Pinecone-API-Version", c.apiVersion)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", core.ErrStoreUnavailable, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", core.ErrStoreUnavailable, err)
	}
	c.logger.Debug("pinecone call", "method", method, "url", url, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed response: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

// errorMessage extracts the message from either error shape Pinecone uses.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) != nil {
		return string(bytes.TrimSpace(data))
	}
	if body.Error.Message != "" {
		return body.Error.Message
	}
	return body.Message
}
