package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/chat"
	"github.com/eldtechnologies/pricechat/internal/handlers"
	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/rag"
	"github.com/eldtechnologies/pricechat/internal/retrieval"
	"github.com/eldtechnologies/pricechat/internal/store"
)

func newServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	mem, err := catalog.NewMemoryCatalog(
		models.Product{ID: "iphone-15", Name: "iPhone 15", Brand: "Apple", Sources: []models.Source{{Name: "FPT Shop", Price: 19_990_000, InStock: true}}},
		models.Product{ID: "galaxy-s24", Name: "Galaxy S24", Brand: "Samsung", Sources: []models.Source{{Name: "Tiki", Price: 20_990_000, InStock: true}}},
		models.Product{ID: "redmi-note-13", Name: "Redmi Note 13", Brand: "Xiaomi", Sources: []models.Source{{Name: "Tiki", Price: 4_290_000, InStock: true}}},
	)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	rules, err := intent.NewRules(mem, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(rules.Close)

	gw, err := retrieval.NewGateway(mem, []retrieval.Strategy{retrieval.CatalogStrategy{Catalog: mem}}, retrieval.Options{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	sessions := store.NewMemoryStore()
	svc := chat.NewService(sessions, rag.New(rules, gw, nil, time.Second, zerolog.Nop()), zerolog.Nop())
	h := handlers.NewHandler(svc, gw, map[string]handlers.Pinger{"catalog": mem, "sessions": sessions}, zerolog.Nop())

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), h, opts))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestChatFlow(t *testing.T) {
	srv := newServer(t, Options{})

	resp, body := do(t, http.MethodPost, srv.URL+"/chat/send", `{"session_id":"s1","message":"So sánh iPhone 15 và Galaxy S24"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s1", body["session_id"])
	response := body["response"].(map[string]any)
	assert.Equal(t, "product_comparison", response["type"])
	assert.Equal(t, "assistant", response["role"])
	data := body["data"].(map[string]any)
	assert.Len(t, data["products"], 2)

	resp, body = do(t, http.MethodGet, srv.URL+"/chat/history/s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 2)
	assert.Equal(t, intent.Welcome, body["welcome"])

	resp, body = do(t, http.MethodDelete, srv.URL+"/chat/history/s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "session deleted", body["message"])

	resp, body = do(t, http.MethodGet, srv.URL+"/chat/history/s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["messages"])
	assert.NotNil(t, body["messages"])
}

func TestChatTextReplyHasNullData(t *testing.T) {
	srv := newServer(t, Options{})

	resp, body := do(t, http.MethodPost, srv.URL+"/chat/send", `{"message":"id: nokia-3310"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["session_id"])
	response := body["response"].(map[string]any)
	assert.Equal(t, "text", response["type"])
	assert.Contains(t, response["content"], "nokia-3310")
	assert.Nil(t, body["data"])
	_, hasMetadata := response["metadata"]
	assert.False(t, hasMetadata)
}

func TestChatValidation(t *testing.T) {
	srv := newServer(t, Options{})

	resp, body := do(t, http.MethodPost, srv.URL+"/chat/send", `{"session_id":"s1",`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", body["error"])

	long, err := json.Marshal(map[string]string{"session_id": "s1", "message": strings.Repeat("a", 501)})
	require.NoError(t, err)
	resp, body = do(t, http.MethodPost, srv.URL+"/chat/send", string(long))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "message")

	// bodies over the size limit name the message limit, not the byte limit
	huge, err := json.Marshal(map[string]string{"session_id": "s1", "message": strings.Repeat("a", 9000)})
	require.NoError(t, err)
	resp, body = do(t, http.MethodPost, srv.URL+"/chat/send", string(huge))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "message: must be at most 500 characters", body["error"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/chat/send", `{"session_id":"no spaces","message":"hi"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/chat/history/"+strings.Repeat("x", 65), "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// rejected turns leave no trace
	_, body = do(t, http.MethodGet, srv.URL+"/chat/history/s1", "")
	assert.Empty(t, body["messages"])
}

func TestProductEndpoints(t *testing.T) {
	srv := newServer(t, Options{})

	resp, body := do(t, http.MethodGet, srv.URL+"/products?max_price=21000000&sort=price_asc&brand=samsung,xiaomi", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	products := body["products"].([]any)
	require.Len(t, products, 2)
	assert.Equal(t, "redmi-note-13", products[0].(map[string]any)["id"])
	assert.Equal(t, "galaxy-s24", products[1].(map[string]any)["id"])
	assert.Equal(t, "catalog", body["source"])

	resp, body = do(t, http.MethodGet, srv.URL+"/products/iphone-15", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "iPhone 15", body["name"])
	assert.Equal(t, 19_990_000.0, body["min_price"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/products/nokia-3310", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/products/compare", `{"product_ids":["iphone-15","xperia-10","galaxy-s24"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["products"], 2)
	assert.Equal(t, []any{"xperia-10"}, body["unresolved"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/products/compare", `{"product_ids":["iphone-15","iphone-15"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/products/compare", `{"product_ids":["`+strings.Repeat("x", 9000)+`","y"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "request body too large", body["error"])
}

func TestProductQueryValidation(t *testing.T) {
	srv := newServer(t, Options{})

	for _, q := range []string{"min_price=abc", "max_price=-1", "min_price=10&max_price=5", "sort=cheapest", "limit=0"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/products?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestHealthAndInfo(t *testing.T) {
	srv := newServer(t, Options{})

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Contains(t, checks, "catalog")
	assert.Contains(t, checks, "sessions")

	resp, body = do(t, http.MethodGet, srv.URL+"/api", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pricechat", body["name"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestRateLimitingWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	srv := newServer(t, Options{Redis: client})

	resp, _ := do(t, http.MethodGet, srv.URL+"/products/iphone-15", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("X-RateLimit-Limit"))
}
