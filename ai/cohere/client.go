package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/poiesic/ragpipe/ai"
	"github.com/poiesic/ragpipe/core"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// SharedClient is a lazily created HTTP client. The first Get creates it,
// Close releases it, and a Get after Close creates a fresh one.
type SharedClient struct {
	timeout   time.Duration
	transport http.RoundTripper

	mu          sync.Mutex
	client      *http.Client
	generations int
}

// NewSharedClient returns an unacquired client whose requests time out after
// timeout. A nil transport uses a clone of http.DefaultTransport.
func NewSharedClient(timeout time.Duration, transport http.RoundTripper) *SharedClient {
	return &SharedClient{timeout: timeout, transport: transport}
}

// Get returns the live client, creating it on first use.
func (s *SharedClient) Get() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		transport := s.transport
		if transport == nil {
			transport = http.DefaultTransport.(*http.Transport).Clone()
		}
		s.client = &http.Client{Timeout: s.timeout, Transport: transport}
		s.generations++
	}
	return s.client
}

// Close releases idle connections and drops the client. Calling Close on a
// released or never acquired client is a no-op.
func (s *SharedClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
	return nil
}

// Acquired reports whether a live client exists.
func (s *SharedClient) Acquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Generations counts how many clients have been created.
func (s *SharedClient) Generations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations
}

// APIError is a non-success response from the Cohere API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cohere API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("cohere API error: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return core.ErrProvider }

// transport performs authenticated JSON calls shared by the embedder and
// reranker: rate limiting, then the circuit breaker, then the HTTP call.
type transport struct {
	baseURL string
	apiKey  string
	client  *SharedClient
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func newTransport(cfg *ai.Config, client *SharedClient, logger *slog.Logger) *transport {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		burst = max(cfg.RequestsPerMinute/10, 1)
	}

	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cohere",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if ratio <= 0 || counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Client errors are the caller's fault and must not open the breaker.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
	})

	return &transport{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  logger,
	}
}

// postJSON sends body to path and decodes a 200 response into out.
func (t *transport) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", core.ErrTransport, err)
	}

	_, err = t.breaker.Execute(func() (interface{}, error) {
		return nil, t.do(ctx, path, payload, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return err
}

func (t *transport) do(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Get().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", core.ErrTransport, req.Method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", core.ErrTransport, path, err)
	}
	t.logger.Debug("cohere call", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &body)
		return &APIError{StatusCode: resp.StatusCode, Message: body.Message}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed %s response: %w", core.ErrProvider, path, err)
	}
	return nil
}
