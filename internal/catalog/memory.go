package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// MemoryCatalog keeps products in memory with a bleve full-text index over them.
type MemoryCatalog struct {
	mu       sync.RWMutex
	index    bleve.Index
	products map[string]models.Product
	order    []string // insertion order
}

// productDocument is the document structure indexed in bleve.
type productDocument struct {
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Description string `json:"description"`
	Specs       string `json:"specs"`
}

// NewMemoryCatalog creates an empty catalog backed by an in-memory bleve index.
func NewMemoryCatalog(products ...models.Product) (*MemoryCatalog, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create product index: %w", err)
	}

	c := &MemoryCatalog{
		index:    index,
		products: make(map[string]models.Product),
	}
	if err := c.Upsert(context.Background(), products...); err != nil {
		index.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the index.
func (c *MemoryCatalog) Close() error {
	return c.index.Close()
}

// Ping always succeeds.
func (c *MemoryCatalog) Ping(ctx context.Context) error { return nil }

// Upsert indexes products, replacing existing ones with the same id.
func (c *MemoryCatalog) Upsert(ctx context.Context, products ...models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range products {
		if err := c.index.Index(p.ID, toDocument(p)); err != nil {
			return fmt.Errorf("index product %s: %w", p.ID, err)
		}
		if _, exists := c.products[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.products[p.ID] = p
	}
	return nil
}

// Search runs a bleve match query and applies the filters to the hits.
// Hits with equal scores keep insertion order.
func (c *MemoryCatalog) Search(ctx context.Context, query string, filters models.Filters, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	text := strings.Join(tokenize(query), " ")
	if text == "" {
		return matchProducts(c.ordered(), "", filters, limit), nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(text))
	req.Size = len(c.order)
	result, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	scores := make(map[string]float64, len(result.Hits))
	for _, hit := range result.Hits {
		scores[hit.ID] = hit.Score
	}

	hits := make([]Hit, 0, len(scores))
	for _, id := range c.order {
		score, ok := scores[id]
		if !ok {
			continue
		}
		ref := c.products[id].Ref()
		if !filters.Match(ref) {
			continue
		}
		hits = append(hits, Hit{Ref: ref, Score: score})
	}

	sortHits(hits, filters.SortBy)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Get returns a product by id.
func (c *MemoryCatalog) Get(ctx context.Context, id string) (*models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

// GetMany returns the known products among ids.
func (c *MemoryCatalog) GetMany(ctx context.Context, ids []string) ([]models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// Names lists product names in insertion order.
func (c *MemoryCatalog) Names(ctx context.Context) ([]NameEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]NameEntry, 0, len(c.order))
	for _, id := range c.order {
		names = append(names, nameEntry(c.products[id]))
	}
	return names, nil
}

func (c *MemoryCatalog) ordered() []models.Product {
	products := make([]models.Product, 0, len(c.order))
	for _, id := range c.order {
		products = append(products, c.products[id])
	}
	return products
}

func toDocument(p models.Product) productDocument {
	specs := make([]string, 0, len(p.Specifications))
	for key, value := range p.Specifications {
		specs = append(specs, key+" "+value.String())
	}
	return productDocument{
		Name:        p.Name,
		Brand:       p.Brand,
		Model:       p.Model,
		Description: p.Description,
		Specs:       strings.Join(specs, " "),
	}
}
