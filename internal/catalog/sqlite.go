package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// SQLiteCatalog stores products in a local SQLite file for development.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens (and creates if needed) a SQLite catalog.
// If dbPath is empty, defaults to "./data/pricechat.db"
func NewSQLiteCatalog(ctx context.Context, dbPath string) (*SQLiteCatalog, error) {
	if dbPath == "" {
		dbPath = "./data/pricechat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	c := &SQLiteCatalog{db: db}

	// Initialize schema
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

// initSchema creates tables if they don't exist.
func (c *SQLiteCatalog) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		brand TEXT DEFAULT '',
		min_price REAL,
		max_price REAL,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_products_min_price ON products(min_price);
	`

	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Ping checks the database connection.
func (c *SQLiteCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Search filters by price and brand in SQL and scores the rest in Go.
func (c *SQLiteCatalog) Search(ctx context.Context, query string, filters models.Filters, limit int) ([]Hit, error) {
	var (
		where []string
		args  []any
	)
	if filters.MinPrice != nil {
		where = append(where, "(max_price IS NULL OR max_price >= ?)")
		args = append(args, *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		where = append(where, "(min_price IS NULL OR min_price <= ?)")
		args = append(args, *filters.MaxPrice)
	}
	if len(filters.Brands) > 0 {
		marks := make([]string, len(filters.Brands))
		for i, b := range filters.Brands {
			marks[i] = "?"
			args = append(args, strings.ToLower(b))
		}
		where = append(where, "lower(brand) IN ("+strings.Join(marks, ",")+")")
	}

	q := `SELECT data FROM products`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"

	products, err := c.queryProducts(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return matchProducts(products, query, filters, limit), nil
}

// Get returns a product by id.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*models.Product, error) {
	var data string
	err := c.db.QueryRowContext(ctx, `SELECT data FROM products WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	var p models.Product
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return &p, nil
}

// GetMany returns the known products among ids, in request order.
func (c *SQLiteCatalog) GetMany(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}

	found, err := c.queryProducts(ctx, `SELECT data FROM products WHERE id IN (`+strings.Join(marks, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	return inRequestOrder(found, ids), nil
}

// Upsert writes products in one transaction. Replaced products keep their position.
func (c *SQLiteCatalog) Upsert(ctx context.Context, products ...models.Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, name, brand, min_price, max_price, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				brand = excluded.brand,
				min_price = excluded.min_price,
				max_price = excluded.max_price,
				data = excluded.data,
				updated_at = CURRENT_TIMESTAMP
		`, p.ID, p.Name, p.Brand, p.MinPrice(), p.MaxPrice(), string(data))
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// Names lists product names in insertion order.
func (c *SQLiteCatalog) Names(ctx context.Context) ([]NameEntry, error) {
	products, err := c.queryProducts(ctx, `SELECT data FROM products ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	names := make([]NameEntry, 0, len(products))
	for _, p := range products {
		names = append(names, nameEntry(p))
	}
	return names, nil
}

func (c *SQLiteCatalog) queryProducts(ctx context.Context, q string, args ...any) ([]models.Product, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p models.Product
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
