package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open returns the catalog named by driver. The postgres driver needs a pool,
// which stays owned by the caller. A memory catalog is seeded from seedFile
// when one is given.
func Open(ctx context.Context, driver string, pool *pgxpool.Pool, sqlitePath, seedFile string) (Catalog, error) {
	switch driver {
	case "postgres":
		if pool == nil {
			return nil, errors.New("postgres catalog requires DATABASE_URL")
		}
		return NewPostgresCatalog(pool), nil
	case "sqlite":
		return NewSQLiteCatalog(ctx, sqlitePath)
	case "memory", "":
		c, err := NewMemoryCatalog()
		if err != nil {
			return nil, err
		}
		if seedFile == "" {
			return c, nil
		}
		products, err := LoadFile(seedFile)
		if err == nil {
			err = c.Upsert(ctx, products...)
		}
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
}
