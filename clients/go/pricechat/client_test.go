package pricechat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/pricechat/internal/models"
)

func TestSendDecodesTypedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "s1", req["session_id"])
		assert.Equal(t, "điện thoại dưới 5 triệu", req["message"])

		msg := models.NewMessage(models.RoleAssistant, "Có 1 sản phẩm", models.TypeProductList,
			models.ProductListData{Products: []models.ProductRef{{ID: "redmi-note-13", Name: "Redmi Note 13"}}})
		json.NewEncoder(w).Encode(map[string]any{"session_id": "s1", "response": msg, "data": msg.Data})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/").Send(context.Background(), "s1", "điện thoại dưới 5 triệu")
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, models.TypeProductList, resp.Response.Type)

	data, ok := resp.Response.Data.(models.ProductListData)
	require.True(t, ok)
	require.Len(t, data.Products, 1)
	assert.Equal(t, "redmi-note-13", data.Products[0].ID)
}

func TestSendOmitsEmptySession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotContains(t, req, "session_id")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "generated",
			"response":   models.NewMessage(models.RoleAssistant, "Xin chào", models.TypeText, nil),
		})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Send(context.Background(), "", "xin chào")
	require.NoError(t, err)
	assert.Equal(t, "generated", resp.SessionID)
	assert.Nil(t, resp.Response.Data)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"message: must be at most 500 characters"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Send(context.Background(), "s1", "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "500 characters")
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestHistoryAndReset(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/history/s1", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"session_id": "s1",
				"messages":   []models.Message{models.NewMessage(models.RoleUser, "hi", models.TypeText, nil)},
				"welcome":    "Xin chào",
			})
		case http.MethodDelete:
			deleted = true
			json.NewEncoder(w).Encode(map[string]string{"message": "session deleted"})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	hist, err := c.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, models.RoleUser, hist.Messages[0].Role)
	assert.Equal(t, "Xin chào", hist.Welcome)

	require.NoError(t, c.Reset(context.Background(), "s1"))
	assert.True(t, deleted)
}

func TestProductsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "iphone", q.Get("q"))
		assert.Equal(t, "20000000", q.Get("max_price"))
		assert.Equal(t, "apple,samsung", q.Get("brand"))
		assert.Equal(t, "price_asc", q.Get("sort"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.False(t, q.Has("min_price"))
		json.NewEncoder(w).Encode(map[string]any{"query": "iphone", "products": []any{}, "total": 0})
	}))
	defer srv.Close()

	maxPrice := 20_000_000.0
	resp, err := NewClient(srv.URL).Products(context.Background(), "iphone", models.Filters{
		MaxPrice: &maxPrice,
		Brands:   []string{"apple", "samsung"},
		SortBy:   models.SortPriceAsc,
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, "iphone", resp.Query)
	assert.Empty(t, resp.Products)
}

func TestCompare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductIDs []string `json:"product_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"iphone-15", "xperia-10"}, req.ProductIDs)
		json.NewEncoder(w).Encode(models.ProductComparisonData{
			Products:   []models.Product{{ID: "iphone-15", Name: "iPhone 15"}},
			Unresolved: []string{"xperia-10"},
		})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Compare(context.Background(), "iphone-15", "xperia-10")
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, []string{"xperia-10"}, resp.Unresolved)
}
