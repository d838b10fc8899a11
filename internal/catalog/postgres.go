package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
)

// PostgresCatalog stores products as JSONB rows in the products table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog uses an existing pool. The products table comes from the store migrations.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// Close is a no-op; the pool belongs to the caller.
func (c *PostgresCatalog) Close() error { return nil }

// Ping checks the database connection.
func (c *PostgresCatalog) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Search narrows candidates in SQL by price, brand and token overlap, then scores them.
func (c *PostgresCatalog) Search(ctx context.Context, query string, filters models.Filters, limit int) ([]Hit, error) {
	defer observeSince(time.Now())

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.MinPrice != nil {
		where = append(where, "(max_price IS NULL OR max_price >= "+arg(*filters.MinPrice)+")")
	}
	if filters.MaxPrice != nil {
		where = append(where, "(min_price IS NULL OR min_price <= "+arg(*filters.MaxPrice)+")")
	}
	if len(filters.Brands) > 0 {
		brands := make([]string, len(filters.Brands))
		for i, b := range filters.Brands {
			brands[i] = strings.ToLower(b)
		}
		where = append(where, "lower(brand) = ANY("+arg(brands)+")")
	}
	if tokens := tokenize(query); len(tokens) > 0 {
		patterns := make([]string, len(tokens))
		for i, t := range tokens {
			patterns[i] = "%" + t + "%"
		}
		where = append(where, "lower(name || ' ' || brand || ' ' || coalesce(data->>'model', '') || ' ' || coalesce(data->>'description', '')) LIKE ANY("+arg(patterns)+")")
	}

	sql := `SELECT data FROM products`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at, id"

	products, err := c.queryProducts(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return matchProducts(products, query, filters, limit), nil
}

// Get returns a product by id.
func (c *PostgresCatalog) Get(ctx context.Context, id string) (*models.Product, error) {
	defer observeSince(time.Now())

	var data []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM products WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return &p, nil
}

// GetMany fetches products in one query and returns them in request order.
func (c *PostgresCatalog) GetMany(ctx context.Context, ids []string) ([]models.Product, error) {
	defer observeSince(time.Now())

	found, err := c.queryProducts(ctx, `SELECT data FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return inRequestOrder(found, ids), nil
}

// Upsert writes products inside one transaction.
func (c *PostgresCatalog) Upsert(ctx context.Context, products ...models.Product) error {
	defer observeSince(time.Now())

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO products (id, name, brand, min_price, max_price, data)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				brand = EXCLUDED.brand,
				min_price = EXCLUDED.min_price,
				max_price = EXCLUDED.max_price,
				data = EXCLUDED.data,
				updated_at = NOW()
		`, p.ID, p.Name, p.Brand, p.MinPrice(), p.MaxPrice(), data)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// Names lists product names in insertion order.
func (c *PostgresCatalog) Names(ctx context.Context) ([]NameEntry, error) {
	defer observeSince(time.Now())

	rows, err := c.pool.Query(ctx, `
		SELECT id, name, coalesce(data->>'model', ''), brand
		FROM products ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []NameEntry
	for rows.Next() {
		var n NameEntry
		if err := rows.Scan(&n.ID, &n.Name, &n.Model, &n.Brand); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (c *PostgresCatalog) queryProducts(ctx context.Context, sql string, args ...any) ([]models.Product, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p models.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// inRequestOrder arranges found products in the order of ids, skipping misses.
func inRequestOrder(found []models.Product, ids []string) []models.Product {
	byID := make(map[string]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func observeSince(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}
