package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/chat"
	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/retrieval"
)

// ProductFinder serves the product endpoints. *retrieval.Gateway implements it.
type ProductFinder interface {
	Search(ctx context.Context, keywords string, filters models.Filters, limit int) (retrieval.Result, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Compare(ctx context.Context, ids []string) (retrieval.Result, error)
}

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat     *chat.Service
	products ProductFinder
	checks   map[string]Pinger
	logger   zerolog.Logger
}

// NewHandler creates a new Handler. checks names the dependencies /health pings.
func NewHandler(chatService *chat.Service, products ProductFinder, checks map[string]Pinger, logger zerolog.Logger) *Handler {
	return &Handler{chat: chatService, products: products, checks: checks, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// tooLarge reports whether err came from reading past the body limit.
func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		metrics.BlockedRequests.WithLabelValues("body_too_large").Inc()
		return true
	}
	return false
}

// bodyError answers a request whose JSON body could not be decoded.
func (h *Handler) bodyError(w http.ResponseWriter, err error) {
	if tooLarge(err) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
}

// sanitizeQuery trims and limits a search query, removing control characters.
func sanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	q = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, q)

	if r := []rune(q); len(r) > chat.MaxMessageLength {
		q = string(r[:chat.MaxMessageLength])
	}
	return q
}
