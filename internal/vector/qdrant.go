// Package vector indexes products in Qdrant and runs similarity lookups against it.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Qdrant is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Point is a vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Filter is a Qdrant payload filter.
type Filter struct {
	Must []Condition `json:"must,omitempty"`
}

// Condition is one field condition of a filter.
type Condition struct {
	Key   string    `json:"key"`
	Match *MatchAny `json:"match,omitempty"`
	Range *Range    `json:"range,omitempty"`
}

// MatchAny matches any of the given values.
type MatchAny struct {
	Any []string `json:"any"`
}

// Range bounds a numeric payload field.
type Range struct {
	GTE *float64 `json:"gte,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// SearchRequest describes a similarity query.
type SearchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	Filter         *Filter   `json:"filter,omitempty"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

// NewQdrant creates a Qdrant client.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection unless it already exists.
func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}

	status, err := q.do(ctx, http.MethodGet, q.collectionURL(), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err = q.do(ctx, http.MethodPut, q.collectionURL(), body, nil)
	return err
}

// Upsert writes points and waits for them to be indexed.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	_, err := q.do(ctx, http.MethodPut, q.collectionURL()+"/points?wait=true", body, nil)
	return err
}

// Search returns the nearest points, best first.
func (q *Qdrant) Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error) {
	if req.Limit <= 0 {
		req.Limit = 5
	}
	req.WithPayload = true

	var resp struct {
		Result []ScoredPoint `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Ping checks that the collection is reachable.
func (q *Qdrant) Ping(ctx context.Context) error {
	_, err := q.do(ctx, http.MethodGet, q.collectionURL(), nil, nil)
	return err
}

func (q *Qdrant) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", q.url, q.collection)
}

// do sends a JSON request and decodes the response into out when given.
// The HTTP status is returned alongside any error.
func (q *Qdrant) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
