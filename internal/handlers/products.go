package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/retrieval"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

// ProductListResponse is the result of a product search.
type ProductListResponse struct {
	Query    string              `json:"query"`
	Products []models.ProductRef `json:"products"`
	Total    int                 `json:"total"`
	Source   string              `json:"source,omitempty"` // backend that answered
}

// CompareRequest is the body of POST /products/compare.
type CompareRequest struct {
	ProductIDs []string `json:"product_ids"`
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := sanitizeQuery(q.Get("q"))

	var filters models.Filters
	for _, p := range []struct {
		name string
		dst  **float64
	}{{"min_price", &filters.MinPrice}, {"max_price", &filters.MaxPrice}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			h.Error(w, http.StatusBadRequest, p.name+" must be a non-negative number")
			return
		}
		*p.dst = &v
	}
	if filters.MinPrice != nil && filters.MaxPrice != nil && *filters.MinPrice > *filters.MaxPrice {
		h.Error(w, http.StatusBadRequest, "min_price must not exceed max_price")
		return
	}

	for _, b := range q["brand"] {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filters.Brands = append(filters.Brands, textutil.NormalizeBrand(part))
			}
		}
	}

	filters.SortBy = models.SortBy(q.Get("sort"))
	if !filters.SortBy.Valid() {
		h.Error(w, http.StatusBadRequest, "sort must be one of price_asc, price_desc, name_asc, name_desc")
		return
	}

	limit := retrieval.MaxResults
	if raw := q.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, retrieval.MaxResults)
	}

	res, err := h.products.Search(r.Context(), query, filters, limit)
	if err != nil {
		h.productError(w, r, err)
		return
	}

	resp := ProductListResponse{Query: query, Products: res.Refs(), Total: len(res.Candidates)}
	if len(res.Candidates) > 0 {
		resp.Source = string(res.Candidates[0].Source)
	}
	h.JSON(w, http.StatusOK, resp)
}

// GetProduct handles GET /products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.productError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, p)
}

// CompareProducts handles POST /products/compare.
func (h *Handler) CompareProducts(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decode(r, &req); err != nil {
		h.bodyError(w, err)
		return
	}

	ids := intent.Compare(req.ProductIDs...).ProductIDs
	if len(ids) < 2 {
		h.Error(w, http.StatusUnprocessableEntity, "product_ids needs at least 2 distinct ids")
		return
	}

	res, err := h.products.Compare(r.Context(), ids)
	if err != nil {
		h.productError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, models.ProductComparisonData{Products: orEmpty(res.Products), Unresolved: res.Unresolved})
}

func (h *Handler) productError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.Error(w, http.StatusNotFound, "product not found")
	case errors.Is(err, models.ErrBackendUnavailable):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Product backends unavailable")
		h.Error(w, http.StatusServiceUnavailable, "product data temporarily unavailable")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Product request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func orEmpty(products []models.Product) []models.Product {
	if products == nil {
		return []models.Product{}
	}
	return products
}
