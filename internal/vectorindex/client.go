package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/config"
	apperrors "github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/errors"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/resilience"
)

// Client is an HTTP client for the vector index REST API. A circuit breaker
// sits in front of every call so that a dead index fails fast instead of
// stalling reindex jobs on timeouts.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a vector index client from config.
func NewClient(cfg config.VectorIndexConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: resilience.NewCircuitBreaker("vector-index", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "vectorindex-client"),
	}
}

type fetchRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace"`
}

type fetchResponse struct {
	Vectors map[string]Record `json:"vectors"`
}

type upsertRequest struct {
	Vectors   []Record `json:"vectors"`
	Namespace string   `json:"namespace"`
}

// Fetch returns the records for the given ids within a namespace.
func (c *Client) Fetch(ctx context.Context, ids []string, namespace string) (map[string]Record, error) {
	if len(ids) == 0 {
		return map[string]Record{}, nil
	}
	var resp fetchResponse
	if err := c.post(ctx, "/vectors/fetch", fetchRequest{IDs: ids, Namespace: namespace}, &resp); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, 503, "fetching %d vectors: %v", len(ids), err)
	}
	if resp.Vectors == nil {
		resp.Vectors = map[string]Record{}
	}
	return resp.Vectors, nil
}

// Upsert writes the given records into a namespace.
func (c *Client) Upsert(ctx context.Context, records []Record, namespace string) error {
	if len(records) == 0 {
		return nil
	}
	if err := c.post(ctx, "/vectors/upsert", upsertRequest{Vectors: records, Namespace: namespace}, nil); err != nil {
		return apperrors.Newf(apperrors.ErrIndexUnavailable, 503, "upserting %d vectors: %v", len(records), err)
	}
	c.logger.Debug("vectors upserted", "count", len(records), "namespace", namespace)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.breaker.Execute(func() error {
		return c.doPost(ctx, path, body, out)
	})
}

func (c *Client) doPost(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling vector index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vector index returned %d: %s", resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
