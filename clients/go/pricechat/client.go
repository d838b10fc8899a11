// Package pricechat provides a Go client for the pricechat HTTP API.
package pricechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// Client is a pricechat API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new pricechat client. Chat turns can wait on a model,
// so the default timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pricechat error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON answer into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// SendResponse is the answer to one chat turn. Response.Data carries the
// typed payload named by Response.Type.
type SendResponse struct {
	SessionID string         `json:"session_id"`
	Response  models.Message `json:"response"`
}

// Send posts a message. An empty sessionID starts a new session.
func (c *Client) Send(ctx context.Context, sessionID, message string) (*SendResponse, error) {
	req := struct {
		SessionID string `json:"session_id,omitempty"`
		Message   string `json:"message"`
	}{sessionID, message}

	var resp SendResponse
	if err := c.doRequest(ctx, http.MethodPost, "/chat/send", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryResponse is the stored conversation of a session.
type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
	Welcome   string           `json:"welcome"`
}

// History fetches the messages of a session.
func (c *Client) History(ctx context.Context, sessionID string) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.doRequest(ctx, http.MethodGet, "/chat/history/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset deletes a session. Deleting an unknown session succeeds.
func (c *Client) Reset(ctx context.Context, sessionID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/chat/history/"+url.PathEscape(sessionID), nil, nil)
}

// ProductList is the answer of a product search.
type ProductList struct {
	Query    string              `json:"query"`
	Products []models.ProductRef `json:"products"`
	Total    int                 `json:"total"`
	Source   string              `json:"source,omitempty"`
}

// Products searches the catalog. A zero limit uses the server default.
func (c *Client) Products(ctx context.Context, query string, f models.Filters, limit int) (*ProductList, error) {
	v := url.Values{}
	if query != "" {
		v.Set("q", query)
	}
	if f.MinPrice != nil {
		v.Set("min_price", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		v.Set("max_price", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if len(f.Brands) > 0 {
		v.Set("brand", strings.Join(f.Brands, ","))
	}
	if f.SortBy != "" {
		v.Set("sort", string(f.SortBy))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}

	path := "/products"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var resp ProductList
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Product fetches one product by id.
func (c *Client) Product(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := c.doRequest(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Compare fetches at least two products side by side.
func (c *Client) Compare(ctx context.Context, ids ...string) (*models.ProductComparisonData, error) {
	req := struct {
		ProductIDs []string `json:"product_ids"`
	}{ids}

	var resp models.ProductComparisonData
	if err := c.doRequest(ctx, http.MethodPost, "/products/compare", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check is the state of one dependency in a health report.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503, which
// surfaces as an *APIError.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
