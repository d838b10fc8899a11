// Package retrieval fetches product data for an intent from the catalog, the
// web and the vector store.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
)

// MaxResults caps the candidates of a search.
const MaxResults = 20

// Candidate is a product reference tagged with its backend and score.
type Candidate struct {
	Ref    models.ProductRef `json:"ref"`
	Source Source            `json:"source"`
	Score  float64           `json:"score"`
}

// Result is the outcome of one retrieval. It is a plain value: retrieving
// again means calling Retrieve again.
type Result struct {
	Candidates []Candidate      // Search: ranked, unique by id
	Products   []models.Product // Detail: one product; Compare: found products in request order
	Unresolved []string         // Compare: ids that could not be found
}

// Refs returns the candidates' product references in rank order.
func (r Result) Refs() []models.ProductRef {
	refs := make([]models.ProductRef, len(r.Candidates))
	for i, c := range r.Candidates {
		refs[i] = c.Ref
	}
	return refs
}

// Options tunes a Gateway.
type Options struct {
	Timeout          time.Duration // per backend call
	SearchCacheTTL   time.Duration // 0 disables the search cache
	ProductCacheSize int           // 0 disables the product cache
	ProductCacheTTL  time.Duration
}

// Gateway runs retrieval for intents over an ordered list of search strategies.
type Gateway struct {
	catalog    catalog.Catalog
	strategies []Strategy
	timeout    time.Duration
	logger     zerolog.Logger

	searchCache    *ristretto.Cache
	searchCacheTTL time.Duration
	products       *expirable.LRU[string, models.Product]
}

// NewGateway creates a gateway. Strategies are tried in order; earlier ones rank higher.
func NewGateway(cat catalog.Catalog, strategies []Strategy, opts Options, logger zerolog.Logger) (*Gateway, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	g := &Gateway{
		catalog:    cat,
		strategies: strategies,
		timeout:    opts.Timeout,
		logger:     logger,
	}

	if opts.SearchCacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     1_000,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create search cache: %w", err)
		}
		g.searchCache = cache
		g.searchCacheTTL = opts.SearchCacheTTL
	}
	if opts.ProductCacheSize > 0 {
		ttl := opts.ProductCacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		g.products = expirable.NewLRU[string, models.Product](opts.ProductCacheSize, nil, ttl)
	}
	return g, nil
}

// Close releases the caches.
func (g *Gateway) Close() {
	if g.searchCache != nil {
		g.searchCache.Close()
	}
}

// Forget drops cached copies of products, typically after they were updated.
// With no ids every cached product goes. Cached searches are always dropped.
func (g *Gateway) Forget(ids ...string) {
	if g.products != nil {
		if len(ids) == 0 {
			g.products.Purge()
		}
		for _, id := range ids {
			g.products.Remove(id)
		}
	}
	if g.searchCache != nil {
		g.searchCache.Clear()
	}
}

// Retrieve fetches the data an intent needs. Chat intents need none.
//
// Detail returns models.ErrNotFound for unknown ids and wraps
// models.ErrBackendUnavailable when the catalog fails. Search and Compare only
// fail when every backend they depend on failed.
func (g *Gateway) Retrieve(ctx context.Context, in intent.Intent) (Result, error) {
	switch in.Kind {
	case intent.KindSearch:
		return g.Search(ctx, in.Keywords, in.Filters, MaxResults)
	case intent.KindDetail:
		p, err := g.Get(ctx, in.ProductID)
		if err != nil {
			return Result{}, err
		}
		return Result{Products: []models.Product{*p}}, nil
	case intent.KindCompare:
		return g.Compare(ctx, in.ProductIDs)
	default:
		return Result{}, nil
	}
}

// Search asks each strategy in turn and stops at the first one that finds
// something. A failing or slow backend counts as finding nothing.
func (g *Gateway) Search(ctx context.Context, keywords string, filters models.Filters, limit int) (Result, error) {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}

	key := cacheKey(keywords, filters, limit)
	if g.searchCache != nil {
		if v, ok := g.searchCache.Get(key); ok {
			metrics.CacheHits.WithLabelValues("search").Inc()
			return Result{Candidates: append([]Candidate(nil), v.([]Candidate)...)}, nil
		}
	}

	var collected []Candidate
	failures := 0
	for _, s := range g.strategies {
		candidates, err := g.searchOne(ctx, s, keywords, filters, limit)
		if err != nil {
			failures++
			continue
		}
		if len(candidates) > 0 {
			collected = append(collected, candidates...)
			break
		}
	}

	if len(collected) == 0 && failures > 0 && failures == len(g.strategies) {
		return Result{}, fmt.Errorf("%w: all search backends failed", models.ErrBackendUnavailable)
	}

	ranked := rank(collected, g.priorities(), filters.SortBy == models.SortRelevance)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if g.searchCache != nil && len(ranked) > 0 {
		g.searchCache.SetWithTTL(key, ranked, 1, g.searchCacheTTL)
	}
	return Result{Candidates: ranked}, nil
}

func (g *Gateway) searchOne(ctx context.Context, s Strategy, keywords string, filters models.Filters, limit int) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	backend := string(s.Source())
	start := time.Now()
	candidates, err := s.Search(ctx, keywords, filters, limit)
	metrics.BackendLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.BackendResults.WithLabelValues(backend, outcome).Inc()
		g.logger.Warn().Err(err).Str("backend", backend).Str("keywords", keywords).Msg("Search backend failed")
		return nil, err
	case len(candidates) == 0:
		metrics.BackendResults.WithLabelValues(backend, "empty").Inc()
	default:
		metrics.BackendResults.WithLabelValues(backend, "hit").Inc()
	}
	return candidates, nil
}

// Get returns one product from the catalog.
func (g *Gateway) Get(ctx context.Context, id string) (*models.Product, error) {
	if g.products != nil {
		if p, ok := g.products.Get(id); ok {
			metrics.CacheHits.WithLabelValues("product").Inc()
			return &p, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	p, err := g.catalog.Get(ctx, id)
	metrics.BackendLatency.WithLabelValues(string(SourceCatalog)).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, models.ErrNotFound):
		metrics.BackendResults.WithLabelValues(string(SourceCatalog), "empty").Inc()
		return nil, fmt.Errorf("product %q: %w", id, models.ErrNotFound)
	case err != nil:
		metrics.BackendResults.WithLabelValues(string(SourceCatalog), "error").Inc()
		g.logger.Warn().Err(err).Str("product_id", id).Msg("Catalog lookup failed")
		return nil, fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
	}

	metrics.BackendResults.WithLabelValues(string(SourceCatalog), "hit").Inc()
	if g.products != nil {
		g.products.Add(id, *p)
	}
	return p, nil
}

// Compare looks up every id concurrently and waits for all of them.
// Products keep the request order; misses are listed in Unresolved.
func (g *Gateway) Compare(ctx context.Context, ids []string) (Result, error) {
	found := make([]*models.Product, len(ids))
	errs := make([]error, len(ids))

	var eg errgroup.Group
	for i, id := range ids {
		eg.Go(func() error {
			found[i], errs[i] = g.Get(ctx, id)
			return nil
		})
	}
	_ = eg.Wait()

	var res Result
	backendFailures := 0
	for i, id := range ids {
		if found[i] != nil {
			res.Products = append(res.Products, *found[i])
			continue
		}
		res.Unresolved = append(res.Unresolved, id)
		if !errors.Is(errs[i], models.ErrNotFound) {
			backendFailures++
		}
	}

	if len(res.Products) == 0 && backendFailures > 0 {
		return res, fmt.Errorf("%w: comparison lookups failed", models.ErrBackendUnavailable)
	}
	return res, nil
}

func (g *Gateway) priorities() map[Source]int {
	p := make(map[Source]int, len(g.strategies))
	for i, s := range g.strategies {
		if _, ok := p[s.Source()]; !ok {
			p[s.Source()] = i
		}
	}
	return p
}

// rank de-duplicates by product id (first occurrence wins) and orders by
// backend priority, then by score when byScore is set. Ties keep their
// original order, so an explicit sort from the backend survives.
func rank(candidates []Candidate, priority map[Source]int, byScore bool) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Ref.ID == "" || seen[c.Ref.ID] {
			continue
		}
		seen[c.Ref.ID] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priority[out[i].Source], priority[out[j].Source]
		if pi != pj || !byScore {
			return pi < pj
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func cacheKey(keywords string, filters models.Filters, limit int) string {
	b, _ := json.Marshal(struct {
		K string         `json:"k"`
		F models.Filters `json:"f"`
		L int            `json:"l"`
	}{keywords, filters, limit})
	return string(b)
}
