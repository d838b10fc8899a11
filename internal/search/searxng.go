// Package search queries a SearXNG instance for phone listings on Vietnamese retailer sites.
package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eldtechnologies/pricechat/internal/config"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

// DefaultEngines are the SearXNG engines queried.
var DefaultEngines = []string{"google", "bing", "duckduckgo"}

// Result is one retailer page returned by web search.
type Result struct {
	Ref      models.ProductRef
	Retailer string
	Score    float64
}

// Client is a minimal SearXNG JSON API client.
type Client struct {
	baseURL   string
	engines   []string
	retailers []config.Retailer
	client    *http.Client
}

// NewClient creates a client for the SearXNG instance at baseURL.
func NewClient(baseURL string, retailers []config.Retailer) *Client {
	if len(retailers) == 0 {
		retailers = config.DefaultRetailers()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		engines:   DefaultEngines,
		retailers: retailers,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type searxngResponse struct {
	Results []struct {
		URL       string  `json:"url"`
		Title     string  `json:"title"`
		Content   string  `json:"content"`
		Thumbnail string  `json:"thumbnail"`
		ImgSrc    string  `json:"img_src"`
		Score     float64 `json:"score"`
	} `json:"results"`
}

// Search returns up to limit unique retailer pages for the keywords, in engine order.
func (c *Client) Search(ctx context.Context, keywords string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", keywords)
	params.Set("format", "json")
	params.Set("language", "vi")
	params.Set("region", "vn")
	params.Set("category_general", "1")
	params.Set("engines", strings.Join(c.engines, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("searxng search failed: %s", resp.Status)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	seen := make(map[string]bool)
	results := make([]Result, 0, limit)
	for _, r := range body.Results {
		retailer, ok := c.retailer(r.URL)
		if !ok || seen[r.URL] {
			continue
		}
		seen[r.URL] = true

		ref := models.ProductRef{
			ID:   webID(r.URL),
			Name: cleanTitle(r.Title),
			URL:  r.URL,
		}
		if brands := textutil.DetectBrands(r.Title); len(brands) > 0 {
			ref.Brand = brands[0]
		}
		if price, ok := textutil.ExtractVNDPrice(r.Title + " " + r.Content); ok {
			ref.MinPrice = &price
			ref.MaxPrice = &price
		}
		ref.ImageURL = r.Thumbnail
		if ref.ImageURL == "" {
			ref.ImageURL = r.ImgSrc
		}

		results = append(results, Result{Ref: ref, Retailer: retailer, Score: r.Score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// retailer returns the display name of the retailer owning rawURL.
func (c *Client) retailer(rawURL string) (string, bool) {
	domain := textutil.Domain(rawURL)
	if domain == "" {
		return "", false
	}
	for _, r := range c.retailers {
		if domain == r.Domain || strings.HasSuffix(domain, "."+r.Domain) {
			return r.Name, true
		}
	}
	return "", false
}

// webID derives a stable product id from a page URL.
func webID(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return "web-" + hex.EncodeToString(sum[:])[:12]
}

// cleanTitle drops the " | Retailer" or " - Retailer" suffix engines keep in titles.
func cleanTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	for _, sep := range []string{" | ", " - ", " – "} {
		if i := strings.LastIndex(title, sep); i > 0 {
			title = title[:i]
		}
	}
	return title
}

