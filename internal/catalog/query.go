package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/eldtechnologies/pricechat/internal/models"
)

var queryWordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopWords are shopping filler words excluded from catalog queries.
var stopWords = map[string]bool{
	"điện": true, "thoại": true, "dt": true, "đt": true, "máy": true,
	"tìm": true, "mua": true, "giá": true, "cho": true, "tôi": true,
	"mình": true, "của": true, "và": true, "với": true, "các": true,
	"những": true, "nào": true, "có": true, "là": true, "loại": true,
	"phone": true, "phones": true, "smartphone": true, "the": true,
	"a": true, "an": true, "and": true, "or": true, "for": true,
	"with": true, "buy": true, "find": true, "price": true, "me": true,
}

// tokenize extracts searchable words from text.
func tokenize(text string) []string {
	words := queryWordRegex.FindAllString(strings.ToLower(text), -1)

	// Deduplicate and filter
	seen := make(map[string]bool)
	result := make([]string, 0, len(words))
	for _, w := range words {
		if !seen[w] && !stopWords[w] {
			seen[w] = true
			result = append(result, w)
		}
	}

	// Limit to 8 tokens
	if len(result) > 8 {
		result = result[:8]
	}

	return result
}

// scoreTokens returns the share of tokens found in the product's searchable text.
// Name matches weigh double.
func scoreTokens(tokens []string, p models.Product) float64 {
	if len(tokens) == 0 {
		return 1
	}
	name := strings.ToLower(p.Name + " " + p.Model)
	rest := strings.ToLower(p.Brand + " " + p.Description)

	var score float64
	for _, tok := range tokens {
		switch {
		case strings.Contains(name, tok):
			score += 2
		case strings.Contains(rest, tok):
			score++
		}
	}
	return score / float64(2*len(tokens))
}

// matchProducts scores, filters and orders products. The input order is the
// tie-break, so callers pass products in insertion order.
func matchProducts(products []models.Product, query string, filters models.Filters, limit int) []Hit {
	tokens := tokenize(query)

	hits := make([]Hit, 0, len(products))
	for _, p := range products {
		ref := p.Ref()
		if !filters.Match(ref) {
			continue
		}
		score := scoreTokens(tokens, p)
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{Ref: ref, Score: score})
	}

	sortHits(hits, filters.SortBy)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// sortHits orders hits by score or the requested sort mode. The sort is stable.
func sortHits(hits []Hit, sortBy models.SortBy) {
	price := func(p *float64, missing float64) float64 {
		if p == nil {
			return missing
		}
		return *p
	}

	var less func(a, b Hit) bool
	switch sortBy {
	case models.SortPriceAsc:
		less = func(a, b Hit) bool { return price(a.Ref.MinPrice, 1e18) < price(b.Ref.MinPrice, 1e18) }
	case models.SortPriceDesc:
		less = func(a, b Hit) bool { return price(a.Ref.MaxPrice, -1) > price(b.Ref.MaxPrice, -1) }
	case models.SortNameAsc:
		less = func(a, b Hit) bool { return strings.ToLower(a.Ref.Name) < strings.ToLower(b.Ref.Name) }
	case models.SortNameDesc:
		less = func(a, b Hit) bool { return strings.ToLower(a.Ref.Name) > strings.ToLower(b.Ref.Name) }
	default:
		less = func(a, b Hit) bool { return a.Score > b.Score }
	}

	sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
}
