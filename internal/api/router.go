package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/api/middleware"
	"github.com/eldtechnologies/pricechat/internal/handlers"
)

// Options configures the router.
type Options struct {
	// Redis enables rate limiting. Nil disables it.
	Redis           *redis.Client
	RateLimitConfig middleware.RateLimiterConfig
	AllowedOrigins  []string
	MaxBodyBytes    int64
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 * 1024
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis, logger, opts.RateLimitConfig)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	r.Route("/chat", func(r chi.Router) {
		r.Post("/send", h.SendMessage)
		r.Get("/history/{session_id}", h.GetHistory)
		r.Delete("/history/{session_id}", h.DeleteHistory)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/compare", h.CompareProducts)
		r.Get("/{id}", h.GetProduct)
	})

	return r
}
