// Package catalog stores phone products and answers structured queries over them.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// Catalog is a queryable product store.
// MemoryCatalog, PostgresCatalog and SQLiteCatalog implement this interface.
type Catalog interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Search returns products matching the query text and filters, best first.
	// An empty query matches every product that passes the filters.
	Search(ctx context.Context, query string, filters models.Filters, limit int) ([]Hit, error)

	// Get returns models.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Product, error)

	// GetMany returns the products found, in request order. Unknown ids are skipped.
	GetMany(ctx context.Context, ids []string) ([]models.Product, error)

	// Upsert inserts or replaces products by id.
	Upsert(ctx context.Context, products ...models.Product) error

	// Names lists every product's naming data in insertion order.
	Names(ctx context.Context) ([]NameEntry, error)
}

// Hit is a search match with its relevance score.
type Hit struct {
	Ref   models.ProductRef
	Score float64
}

// NameEntry is the naming data used to spot product mentions in free text.
type NameEntry struct {
	ID    string
	Name  string
	Model string
	Brand string
}

// LoadFile reads a JSON array of products.
func LoadFile(path string) ([]models.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, p := range products {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("parse %s: product %d needs an id and a name", path, i)
		}
	}
	return products, nil
}

func nameEntry(p models.Product) NameEntry {
	return NameEntry{ID: p.ID, Name: p.Name, Model: p.Model, Brand: p.Brand}
}
