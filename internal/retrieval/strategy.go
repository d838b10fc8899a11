package retrieval

import (
	"context"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/search"
	"github.com/eldtechnologies/pricechat/internal/vector"
)

// Source names the backend a candidate came from.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceWeb     Source = "web"
	SourceVector  Source = "vector"
)

// Strategy is one product search backend.
type Strategy interface {
	Source() Source
	Search(ctx context.Context, keywords string, filters models.Filters, limit int) ([]Candidate, error)
}

// CatalogStrategy searches the product catalog.
type CatalogStrategy struct {
	Catalog catalog.Catalog
}

func (s CatalogStrategy) Source() Source { return SourceCatalog }

func (s CatalogStrategy) Search(ctx context.Context, keywords string, filters models.Filters, limit int) ([]Candidate, error) {
	hits, err := s.Catalog.Search(ctx, keywords, filters, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{Ref: h.Ref, Source: SourceCatalog, Score: h.Score}
	}
	return out, nil
}

// WebSearcher finds product pages on the web.
type WebSearcher interface {
	Search(ctx context.Context, keywords string, limit int) ([]search.Result, error)
}

// WebStrategy searches retailer sites. Filters apply to the parsed snippets.
type WebStrategy struct {
	Searcher WebSearcher
}

func (s WebStrategy) Source() Source { return SourceWeb }

func (s WebStrategy) Search(ctx context.Context, keywords string, filters models.Filters, limit int) ([]Candidate, error) {
	if keywords == "" {
		// retailers are not browsable without a query
		return nil, nil
	}
	results, err := s.Searcher.Search(ctx, keywords, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		if !filters.Match(r.Ref) {
			continue
		}
		out = append(out, Candidate{Ref: r.Ref, Source: SourceWeb, Score: r.Score})
	}
	return out, nil
}

// SimilaritySearcher finds products close to a text in embedding space.
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, text string, filters models.Filters, k int) ([]vector.Match, error)
}

// VectorStrategy runs a semantic lookup. It returns the store's configured top-k.
type VectorStrategy struct {
	Store SimilaritySearcher
}

func (s VectorStrategy) Source() Source { return SourceVector }

func (s VectorStrategy) Search(ctx context.Context, keywords string, filters models.Filters, _ int) ([]Candidate, error) {
	if keywords == "" {
		return nil, nil
	}
	matches, err := s.Store.SimilaritySearch(ctx, keywords, filters, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(matches))
	for i, m := range matches {
		out[i] = Candidate{Ref: m.Ref, Source: SourceVector, Score: m.Score}
	}
	return out, nil
}
