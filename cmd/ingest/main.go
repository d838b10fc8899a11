// Command ingest loads a JSON product file into the catalog and the vector index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/config"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/store"
	"github.com/eldtechnologies/pricechat/internal/vector"
)

// batchSize bounds one embedding request.
const batchSize = 50

func main() {
	cfg := config.Load()

	file := flag.String("file", cfg.CatalogFile, "JSON file with an array of products")
	skipVectors := flag.Bool("skip-vectors", false, "Only load the catalog")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: ingest -file <products.json> [-skip-vectors]")
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	if err := run(context.Background(), cfg, *file, *skipVectors, logger); err != nil {
		logger.Fatal().Err(err).Msg("ingest failed")
	}
}

func run(ctx context.Context, cfg *config.Config, file string, skipVectors bool, logger zerolog.Logger) error {
	products, err := catalog.LoadFile(file)
	if err != nil {
		return err
	}
	logger.Info().Int("products", len(products)).Str("file", file).Msg("products loaded")

	if cfg.CatalogDriver == "memory" {
		return fmt.Errorf("catalog driver %q does not persist, set DATABASE_URL or CATALOG_DRIVER=sqlite", cfg.CatalogDriver)
	}

	var pool *pgxpool.Pool
	if cfg.CatalogDriver == "postgres" {
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		pool = pgStore.Pool()
	}

	cat, err := catalog.Open(ctx, cfg.CatalogDriver, pool, cfg.SQLitePath, "")
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := cat.Upsert(ctx, products...); err != nil {
		return fmt.Errorf("upsert catalog: %w", err)
	}
	logger.Info().Str("driver", cfg.CatalogDriver).Msg("catalog updated")

	if skipVectors {
		return nil
	}
	vectors, err := vector.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if vectors == nil {
		logger.Warn().Msg("QDRANT_URL or GEMINI_API_KEY not set, skipping vector index")
		return nil
	}
	return index(ctx, vectors, products, logger)
}

func index(ctx context.Context, vectors *vector.Store, products []models.Product, logger zerolog.Logger) error {
	for start := 0; start < len(products); start += batchSize {
		end := min(start+batchSize, len(products))
		if err := vectors.Index(ctx, products[start:end]); err != nil {
			return fmt.Errorf("index products %d-%d: %w", start, end, err)
		}
		logger.Info().Int("indexed", end).Int("total", len(products)).Msg("vector index progress")
	}
	return nil
}
