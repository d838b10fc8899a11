package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/api"
	"github.com/eldtechnologies/pricechat/internal/api/middleware"
	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/chat"
	"github.com/eldtechnologies/pricechat/internal/config"
	"github.com/eldtechnologies/pricechat/internal/handlers"
	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/llm"
	"github.com/eldtechnologies/pricechat/internal/rag"
	"github.com/eldtechnologies/pricechat/internal/retrieval"
	"github.com/eldtechnologies/pricechat/internal/search"
	"github.com/eldtechnologies/pricechat/internal/store"
	"github.com/eldtechnologies/pricechat/internal/vector"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()
	checks := make(map[string]handlers.Pinger)

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Initialize PostgreSQL store
	var pgStore *store.PostgresStore
	if cfg.DatabaseURL != "" {
		var err error
		pgStore, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		checks["postgres"] = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		checks["redis"] = redisStore
		logger.Info().Msg("connected to Redis")
	}

	// Session store
	var sessions store.SessionStore
	switch cfg.SessionDriver {
	case "redis":
		if redisStore == nil {
			logger.Fatal().Msg("redis session store requires REDIS_URL")
		}
		sessions = redisStore
	case "postgres":
		if pgStore == nil {
			logger.Fatal().Msg("postgres session store requires DATABASE_URL")
		}
		sessions = pgStore
	case "sqlite":
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite session store failed")
		}
		defer sqliteStore.Close()
		go purgeIdle(ctx, sqliteStore, cfg.SessionTTL, logger)
		checks["sqlite"] = sqliteStore
		sessions = sqliteStore
	default:
		sessions = store.NewMemoryStore()
	}
	logger.Info().Str("driver", cfg.SessionDriver).Msg("session store ready")

	// Product catalog
	cat, err := catalog.Open(ctx, cfg.CatalogDriver, pgPool(pgStore), cfg.SQLitePath, cfg.CatalogFile)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.CatalogDriver).Msg("catalog unavailable")
	}
	defer cat.Close()
	checks["catalog"] = cat
	logger.Info().Str("driver", cfg.CatalogDriver).Msg("catalog ready")

	// Retrieval chain: catalog, then web search, then semantic search
	strategies := []retrieval.Strategy{retrieval.CatalogStrategy{Catalog: cat}}
	if cfg.SearxngURL != "" {
		strategies = append(strategies, retrieval.WebStrategy{Searcher: search.NewClient(cfg.SearxngURL, cfg.Retailers)})
		logger.Info().Int("retailers", len(cfg.Retailers)).Msg("web search enabled")
	}
	vectors, err := vector.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("vector store unavailable")
	}
	if vectors != nil {
		strategies = append(strategies, retrieval.VectorStrategy{Store: vectors})
		checks["qdrant"] = vectors
		logger.Info().Str("collection", cfg.QdrantCollection).Msg("vector search enabled")
	}

	gateway, err := retrieval.NewGateway(cat, strategies, retrieval.Options{
		Timeout:          cfg.BackendTimeout,
		SearchCacheTTL:   cfg.SearchCacheTTL,
		ProductCacheSize: 1024,
	}, logger.With().Str("component", "retrieval").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("retrieval gateway failed")
	}
	defer gateway.Close()

	// Language model (optional)
	model, err := llm.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.LLMProvider).Msg("language model unavailable")
	}
	if model == nil {
		logger.Warn().Msg("no language model configured, replies are template-based")
	} else {
		logger.Info().Str("provider", model.Name()).Msg("language model ready")
	}

	// Intent resolution
	rules, err := intent.NewRules(cat, 5*time.Minute, logger.With().Str("component", "intent").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("intent resolver failed")
	}
	defer rules.Close()
	var resolver intent.Resolver = rules
	llmIntents := cfg.IntentResolver == "llm" && model != nil
	if llmIntents {
		resolver = intent.NewLLM(model, rules, cfg.LLMTimeout, logger.With().Str("component", "intent").Logger())
	}

	orchestrator := rag.New(resolver, gateway, model, cfg.LLMTimeout, logger.With().Str("component", "rag").Logger())
	chatService := chat.NewService(sessions, orchestrator, logger.With().Str("component", "chat").Logger())
	h := handlers.NewHandler(chatService, gateway, checks, logger)

	// Create router
	opts := api.Options{
		RateLimitConfig: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if redisStore != nil {
		opts.Redis = redisStore.Client()
	}
	router := api.NewRouter(logger, h, opts)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg, llmIntents),
		IdleTimeout:  60 * time.Second,
	}

	// SIGHUP drops catalog-derived caches, e.g. after cmd/ingest updated products
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			rules.Invalidate()
			gateway.Forget()
			logger.Info().Msg("catalog caches cleared")
		}
	}()

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting pricechat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// writeTimeout bounds one HTTP response. A chat turn runs the resolver model
// call when llmIntents is set, the backend lookups and the reply model call,
// and may first wait for one such turn ahead of it on the session lock.
func writeTimeout(cfg *config.Config, llmIntents bool) time.Duration {
	turn := cfg.LLMTimeout + 2*cfg.BackendTimeout
	if llmIntents {
		turn += cfg.LLMTimeout
	}
	return 2*turn + 10*time.Second
}

// purgeIdle drops expired sqlite sessions; redis expires keys on its own.
func purgeIdle(ctx context.Context, s *store.SQLiteStore, ttl time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeIdle(ctx, ttl)
			if err != nil {
				logger.Warn().Err(err).Msg("session purge failed")
			} else if n > 0 {
				logger.Info().Int64("sessions", n).Msg("purged idle sessions")
			}
		}
	}
}

func pgPool(s *store.PostgresStore) *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.Pool()
}
