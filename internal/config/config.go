package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string

	// HTTP
	AllowedOrigins []string // CORS origins, "*" when unset

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations

	// Storage drivers
	CatalogDriver string // "memory", "postgres" or "sqlite"
	SQLitePath    string
	CatalogFile   string // JSON product file loaded into the memory catalog at startup
	SessionDriver string // "memory", "redis", "postgres" or "sqlite"
	SessionTTL    time.Duration

	// Web search
	SearxngURL    string
	RetailersFile string
	Retailers     []Retailer

	// Vector store
	QdrantURL           string
	QdrantAPIKey        string
	QdrantCollection    string
	SimilarityThreshold float64
	VectorTopK          int

	// Language model
	LLMProvider     string // "gemini", "openai", "anthropic" or "" for none
	GeminiAPIKey    string
	GeminiModel     string
	EmbeddingModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMTemperature  float64
	LLMMaxTokens    int
	IntentResolver  string // "rules" or "llm"

	// Timeouts and caches
	BackendTimeout time.Duration
	LLMTimeout     time.Duration
	SearchCacheTTL time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",

		SQLitePath:  getEnv("SQLITE_PATH", "./data/pricechat.db"),
		CatalogFile: os.Getenv("CATALOG_FILE"),
		SessionTTL:  getDuration("SESSION_TTL", 24*time.Hour),

		SearxngURL:    strings.TrimRight(os.Getenv("SEARXNG_URL"), "/"),
		RetailersFile: os.Getenv("RETAILERS_FILE"),

		QdrantURL:           strings.TrimRight(os.Getenv("QDRANT_URL"), "/"),
		QdrantAPIKey:        os.Getenv("QDRANT_API_KEY"),
		QdrantCollection:    getEnv("QDRANT_COLLECTION", "phone_products"),
		SimilarityThreshold: getFloat("SIMILARITY_THRESHOLD", 0.6),
		VectorTopK:          getInt("VECTOR_TOP_K", 5),

		LLMProvider:     strings.ToLower(os.Getenv("LLM_PROVIDER")),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		LLMTemperature:  getFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:    getInt("LLM_MAX_TOKENS", 1024),
		IntentResolver:  getEnv("INTENT_RESOLVER", "rules"),

		BackendTimeout: getDuration("BACKEND_TIMEOUT", 5*time.Second),
		LLMTimeout:     getDuration("LLM_TIMEOUT", 20*time.Second),
		SearchCacheTTL: getDuration("SEARCH_CACHE_TTL", time.Minute),
	}

	// Comma-separated IPs or CIDRs
	cfg.RateLimitWhitelist = splitList(os.Getenv("RATE_LIMIT_WHITELIST"))
	cfg.AllowedOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	// Drivers follow the configured infrastructure unless set explicitly
	cfg.CatalogDriver = getEnv("CATALOG_DRIVER", defaultDriver(cfg.DatabaseURL, "postgres"))
	cfg.SessionDriver = getEnv("SESSION_DRIVER", defaultDriver(cfg.RedisURL, "redis"))

	// Gemini is the default model when a key is present
	if cfg.LLMProvider == "" && cfg.GeminiAPIKey != "" {
		cfg.LLMProvider = "gemini"
	}

	retailers, err := LoadRetailers(cfg.RetailersFile)
	if err != nil {
		panic("invalid RETAILERS_FILE: " + err.Error())
	}
	cfg.Retailers = retailers

	// In production, require database and redis URLs
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func defaultDriver(url, driver string) string {
	if url != "" {
		return driver
	}
	return "memory"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

// getDuration accepts Go durations ("5s") or plain seconds ("5").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
