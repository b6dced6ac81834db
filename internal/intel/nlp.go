// Package intel is the enrichment pass: entity extraction over free text,
// canonicalization into graph nodes, embeddings and co-occurrence edges.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const nlpTimeout = 30 * time.Second

// Entity is one extraction hit from the NLP service.
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// NLPClient talks to the external entity-extraction/embedding service.
type NLPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewNLPClient creates a client for the service at baseURL.
func NewNLPClient(baseURL string, logger *slog.Logger) *NLPClient {
	return &NLPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: nlpTimeout},
		logger:  logger,
	}
}

// ExtractEntities runs entity extraction over text with a fixed label set.
func (c *NLPClient) ExtractEntities(ctx context.Context, text string, labels []string) ([]Entity, error) {
	var resp struct {
		Entities []Entity `json:"entities"`
	}
	err := c.post(ctx, "/v1/extract", map[string]any{
		"text":   text,
		"labels": labels,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	return resp.Entities, nil
}

// Embed returns the embedding vector for text.
func (c *NLPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.post(ctx, "/v1/embed", map[string]any{"text": text}, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return resp.Embedding, nil
}

// post sends one JSON request, retrying transport errors and 5xx responses.
func (c *NLPClient) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err // transport error, retry
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			c.logger.Warn("NLP service server error, retrying", "path", path, "status", resp.StatusCode)
			return fmt.Errorf("nlp service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("nlp service returned %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode nlp response: %w", err))
		}
		return nil
	}, policy)
}
