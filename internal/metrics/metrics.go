package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_chat_turns_total",
			Help: "Total completed chat turns",
		},
		[]string{"type"}, // response type of the assistant message
	)

	DegradedReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_degraded_replies_total",
			Help: "Assistant replies that fell back to canned text",
		},
		[]string{"reason"}, // "not_found", "no_results", "unresolved", "llm", "panic"
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricechat_sessions_created_total",
			Help: "Total chat sessions created",
		},
	)

	// Retrieval metrics
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricechat_backend_latency_seconds",
			Help:    "Retrieval backend call latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	BackendResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_backend_results_total",
			Help: "Retrieval backend calls by outcome",
		},
		[]string{"backend", "outcome"}, // "hit", "empty", "error", "timeout"
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_cache_hits_total",
			Help: "Retrieval cache hits",
		},
		[]string{"cache"}, // "search" or "product"
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricechat_llm_latency_seconds",
			Help:    "Language model completion latency",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"provider", "outcome"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricechat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricechat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricechat_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
