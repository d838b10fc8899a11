package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/pricechat/internal/config"
)

const searxngBody = `{
	"query": "iphone 15",
	"results": [
		{"url": "https://www.fptshop.com.vn/dien-thoai/iphone-15", "title": "iPhone 15 128GB | Chính hãng VN/A - FPT Shop", "content": "Giá chỉ 19.990.000₫, trả góp 0%", "score": 3.5},
		{"url": "https://en.wikipedia.org/wiki/IPhone_15", "title": "iPhone 15 - Wikipedia", "content": "", "score": 3.2},
		{"url": "https://cellphones.com.vn/iphone-15.html", "title": "iPhone 15 chính hãng", "content": "Camera 48MP", "thumbnail": "https://cdn.cellphones.com.vn/15.jpg", "score": 2.1},
		{"url": "https://www.fptshop.com.vn/dien-thoai/iphone-15", "title": "duplicate", "score": 1.0},
		{"url": "https://shop.tiki.vn/iphone-15", "title": "Điện thoại Apple iPhone 15", "score": 0.5}
	]
}`

func TestSearchFiltersRetailers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "iphone 15", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "vi", r.URL.Query().Get("language"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searxngBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", nil)
	results, err := client.Search(context.Background(), "iphone 15", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	first := results[0]
	assert.Equal(t, "FPT Shop", first.Retailer)
	assert.Equal(t, "iPhone 15 128GB", first.Ref.Name)
	assert.Equal(t, "Apple", first.Ref.Brand)
	require.NotNil(t, first.Ref.MinPrice)
	assert.Equal(t, 19_990_000.0, *first.Ref.MinPrice)
	assert.Equal(t, 3.5, first.Score)

	assert.Equal(t, "CellphoneS", results[1].Retailer)
	assert.Nil(t, results[1].Ref.MinPrice)
	assert.Equal(t, "https://cdn.cellphones.com.vn/15.jpg", results[1].Ref.ImageURL)

	assert.Equal(t, "Tiki", results[2].Retailer)
	assert.NotEqual(t, results[0].Ref.ID, results[2].Ref.ID)
}

func TestSearchLimitAndCustomRetailers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searxngBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, []config.Retailer{{Domain: "cellphones.com.vn", Name: "CellphoneS"}})
	results, err := client.Search(context.Background(), "iphone 15", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "CellphoneS", results[0].Retailer)
}

func TestSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Search(context.Background(), "iphone", 5)
	assert.ErrorContains(t, err, "502")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer bad.Close()

	_, err = NewClient(bad.URL, nil).Search(context.Background(), "iphone", 5)
	assert.ErrorContains(t, err, "decode searxng response")
}

func TestWebIDStable(t *testing.T) {
	assert.Equal(t, webID("https://tiki.vn/a"), webID("https://tiki.vn/a"))
	assert.NotEqual(t, webID("https://tiki.vn/a"), webID("https://tiki.vn/b"))
}
