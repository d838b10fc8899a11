package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/search"
	"github.com/eldtechnologies/pricechat/internal/vector"
)

func price(v float64) *float64 { return &v }

var fixtures = []models.Product{
	{ID: "iphone-15", Name: "iPhone 15", Brand: "Apple", Sources: []models.Source{{Name: "FPT Shop", Price: 19_990_000}}},
	{ID: "galaxy-s24", Name: "Galaxy S24", Brand: "Samsung", Sources: []models.Source{{Name: "CellphoneS", Price: 20_990_000}}},
	{ID: "redmi-note-13", Name: "Redmi Note 13", Brand: "Xiaomi", Sources: []models.Source{{Name: "Tiki", Price: 4_290_000}}},
}

// countingCatalog counts Get calls and can be switched to fail.
type countingCatalog struct {
	catalog.Catalog
	gets atomic.Int32
	fail bool
}

func (c *countingCatalog) Get(ctx context.Context, id string) (*models.Product, error) {
	c.gets.Add(1)
	if c.fail {
		return nil, errors.New("connection refused")
	}
	return c.Catalog.Get(ctx, id)
}

func (c *countingCatalog) Search(ctx context.Context, query string, filters models.Filters, limit int) ([]catalog.Hit, error) {
	if c.fail {
		return nil, errors.New("connection refused")
	}
	return c.Catalog.Search(ctx, query, filters, limit)
}

type fakeWeb struct {
	results []search.Result
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeWeb) Search(ctx context.Context, keywords string, limit int) ([]search.Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

type fakeVector struct {
	matches []vector.Match
	err     error
	calls   atomic.Int32
}

func (f *fakeVector) SimilaritySearch(ctx context.Context, text string, filters models.Filters, k int) ([]vector.Match, error) {
	f.calls.Add(1)
	return f.matches, f.err
}

type setup struct {
	gateway *Gateway
	catalog *countingCatalog
	web     *fakeWeb
	vector  *fakeVector
}

func newSetup(t *testing.T, opts Options) *setup {
	t.Helper()
	mem, err := catalog.NewMemoryCatalog(fixtures...)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	s := &setup{
		catalog: &countingCatalog{Catalog: mem},
		web: &fakeWeb{results: []search.Result{
			{Ref: models.ProductRef{ID: "web-1", Name: "Xperia 10 VI", Brand: "Sony", MinPrice: price(8_990_000), MaxPrice: price(8_990_000)}, Retailer: "Tiki", Score: 2},
			{Ref: models.ProductRef{ID: "web-2", Name: "Xperia 1 VI", Brand: "Sony", MinPrice: price(30_990_000), MaxPrice: price(30_990_000)}, Retailer: "FPT Shop", Score: 3},
			{Ref: models.ProductRef{ID: "web-1", Name: "duplicate"}, Retailer: "Tiki", Score: 9},
		}},
		vector: &fakeVector{matches: []vector.Match{
			{Ref: models.ProductRef{ID: "vec-1", Name: "Xperia 5 V", Brand: "Sony"}, Score: 0.8},
		}},
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	g, err := NewGateway(s.catalog, []Strategy{
		CatalogStrategy{Catalog: s.catalog},
		WebStrategy{Searcher: s.web},
		VectorStrategy{Store: s.vector},
	}, opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(g.Close)
	s.gateway = g
	return s
}

func TestSearchCatalogFirst(t *testing.T) {
	s := newSetup(t, Options{})

	res, err := s.gateway.Retrieve(context.Background(), intent.Search("galaxy", models.Filters{}))
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "galaxy-s24", res.Candidates[0].Ref.ID)
	assert.Equal(t, SourceCatalog, res.Candidates[0].Source)
	assert.Equal(t, int32(0), s.web.calls.Load())
}

func TestSearchFallsBackToWeb(t *testing.T) {
	s := newSetup(t, Options{})

	res, err := s.gateway.Retrieve(context.Background(), intent.Search("xperia", models.Filters{}))
	require.NoError(t, err)

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "web-2", res.Candidates[0].Ref.ID, "higher score first")
	assert.Equal(t, "web-1", res.Candidates[1].Ref.ID)
	assert.Equal(t, "Xperia 10 VI", res.Candidates[1].Ref.Name, "first occurrence wins")
	for _, c := range res.Candidates {
		assert.Equal(t, SourceWeb, c.Source)
	}
	assert.Equal(t, int32(0), s.vector.calls.Load())
	assert.Len(t, res.Refs(), 2)
}

func TestSearchWebAppliesFilters(t *testing.T) {
	s := newSetup(t, Options{})

	res, err := s.gateway.Search(context.Background(), "xperia", models.Filters{MaxPrice: price(10_000_000)}, 10)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "web-1", res.Candidates[0].Ref.ID)
}

func TestSearchDegradesPastFailingBackends(t *testing.T) {
	s := newSetup(t, Options{Timeout: 20 * time.Millisecond})
	s.catalog.fail = true
	s.web.delay = time.Second

	res, err := s.gateway.Search(context.Background(), "xperia", models.Filters{}, 0)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, SourceVector, res.Candidates[0].Source)
	assert.Equal(t, int32(1), s.web.calls.Load())
}

func TestSearchAllBackendsFail(t *testing.T) {
	s := newSetup(t, Options{})
	s.catalog.fail = true
	s.web.err = errors.New("502")
	s.vector.err = errors.New("qdrant down")

	_, err := s.gateway.Search(context.Background(), "xperia", models.Filters{}, 0)
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestSearchNothingFound(t *testing.T) {
	s := newSetup(t, Options{})
	s.web.results = nil
	s.vector.matches = nil

	res, err := s.gateway.Search(context.Background(), "nokia 3310", models.Filters{}, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestSearchCache(t *testing.T) {
	s := newSetup(t, Options{SearchCacheTTL: time.Minute})
	ctx := context.Background()

	first, err := s.gateway.Search(ctx, "xperia", models.Filters{}, 0)
	require.NoError(t, err)
	s.gateway.searchCache.Wait()

	second, err := s.gateway.Search(ctx, "xperia", models.Filters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), s.web.calls.Load())

	s.gateway.Forget()
	_, err = s.gateway.Search(ctx, "xperia", models.Filters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.web.calls.Load())
}

func TestDetail(t *testing.T) {
	s := newSetup(t, Options{ProductCacheSize: 10})
	ctx := context.Background()

	res, err := s.gateway.Retrieve(ctx, intent.Detail("iphone-15"))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "iPhone 15", res.Products[0].Name)

	_, err = s.gateway.Retrieve(ctx, intent.Detail("iphone-15"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.catalog.gets.Load(), "second lookup served from cache")

	s.gateway.Forget("galaxy-s24")
	_, err = s.gateway.Retrieve(ctx, intent.Detail("iphone-15"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.catalog.gets.Load(), "other ids stay cached")

	s.gateway.Forget()
	_, err = s.gateway.Retrieve(ctx, intent.Detail("iphone-15"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.catalog.gets.Load(), "reload after a full purge")

	_, err = s.gateway.Retrieve(ctx, intent.Detail("nokia-3310"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NotErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestDetailBackendFailure(t *testing.T) {
	s := newSetup(t, Options{})
	s.catalog.fail = true

	_, err := s.gateway.Retrieve(context.Background(), intent.Detail("iphone-15"))
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestCompareReportsUnresolved(t *testing.T) {
	s := newSetup(t, Options{})

	res, err := s.gateway.Retrieve(context.Background(), intent.Compare("galaxy-s24", "xperia-10", "iphone-15"))
	require.NoError(t, err)

	require.Len(t, res.Products, 2)
	assert.Equal(t, "galaxy-s24", res.Products[0].ID)
	assert.Equal(t, "iphone-15", res.Products[1].ID)
	assert.Equal(t, []string{"xperia-10"}, res.Unresolved)
	assert.Equal(t, int32(3), s.catalog.gets.Load())
}

func TestCompareBackendDown(t *testing.T) {
	s := newSetup(t, Options{})
	s.catalog.fail = true

	res, err := s.gateway.Compare(context.Background(), []string{"galaxy-s24", "iphone-15"})
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
	assert.Equal(t, []string{"galaxy-s24", "iphone-15"}, res.Unresolved)
}

func TestChatNeedsNoRetrieval(t *testing.T) {
	s := newSetup(t, Options{})

	res, err := s.gateway.Retrieve(context.Background(), intent.Chat(""))
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Products)
	assert.Equal(t, int32(0), s.catalog.gets.Load())
}

func TestRankStableByPriorityThenScore(t *testing.T) {
	priority := map[Source]int{SourceCatalog: 0, SourceWeb: 1, SourceVector: 2}
	in := []Candidate{
		{Ref: models.ProductRef{ID: "v"}, Source: SourceVector, Score: 0.99},
		{Ref: models.ProductRef{ID: "a"}, Source: SourceCatalog, Score: 1},
		{Ref: models.ProductRef{ID: "b"}, Source: SourceCatalog, Score: 1},
		{Ref: models.ProductRef{ID: "c"}, Source: SourceCatalog, Score: 2},
		{Ref: models.ProductRef{ID: "a"}, Source: SourceWeb, Score: 5},
	}

	ids := func(cs []Candidate) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Ref.ID)
		}
		return out
	}
	assert.Equal(t, []string{"c", "a", "b", "v"}, ids(rank(in, priority, true)))
	assert.Equal(t, []string{"a", "b", "c", "v"}, ids(rank(in, priority, false)))
}
