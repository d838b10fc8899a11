package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// pointNamespace derives stable Qdrant point ids from product ids.
var pointNamespace = uuid.MustParse("6f1c3a52-8a0e-4d7b-9a53-6a1f0c2b9e11")

// Match is a product found by similarity.
type Match struct {
	Ref   models.ProductRef
	Score float64
}

// Store combines an embedder and a Qdrant collection into a product similarity index.
type Store struct {
	qdrant    *Qdrant
	embedder  Embedder
	threshold float64
	topK      int
}

// NewStore creates a similarity index. Hits scoring below threshold are dropped.
func NewStore(qdrant *Qdrant, embedder Embedder, threshold float64, topK int) *Store {
	if topK <= 0 {
		topK = 5
	}
	return &Store{qdrant: qdrant, embedder: embedder, threshold: threshold, topK: topK}
}

// Ping checks the Qdrant collection.
func (s *Store) Ping(ctx context.Context) error {
	return s.qdrant.Ping(ctx)
}

// SimilaritySearch embeds text and returns the closest products passing the filters.
func (s *Store) SimilaritySearch(ctx context.Context, text string, filters models.Filters, k int) ([]Match, error) {
	if k <= 0 {
		k = s.topK
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	points, err := s.qdrant.Search(ctx, SearchRequest{
		Vector:         vectors[0],
		Limit:          k,
		Filter:         payloadFilter(filters),
		ScoreThreshold: s.threshold,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		if p.Score < s.threshold {
			continue
		}
		ref, ok := refFromPayload(p.Payload)
		if !ok {
			continue
		}
		matches = append(matches, Match{Ref: ref, Score: p.Score})
	}
	return matches, nil
}

// Index embeds and upserts products, creating the collection when needed.
func (s *Store) Index(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	if err := s.qdrant.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	texts := make([]string, len(products))
	for i, p := range products {
		texts[i] = DocumentText(p)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	points := make([]Point, len(products))
	for i, p := range products {
		points[i] = Point{
			ID:      PointID(p.ID),
			Vector:  vectors[i],
			Payload: payload(p),
		}
	}
	return s.qdrant.Upsert(ctx, points)
}

// PointID maps a product id to its Qdrant point id.
func PointID(productID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(productID)).String()
}

// DocumentText is the text embedded for a product.
func DocumentText(p models.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", p.Brand, p.Name)
	if p.Model != "" {
		fmt.Fprintf(&b, " (%s)", p.Model)
	}
	if p.Description != "" {
		b.WriteString(". " + p.Description)
	}
	keys := make([]string, 0, len(p.Specifications))
	for key := range p.Specifications {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, ". %s: %s", key, p.Specifications[key].String())
	}
	return b.String()
}

func payload(p models.Product) map[string]any {
	ref := p.Ref()
	out := map[string]any{
		"product_id": ref.ID,
		"name":       ref.Name,
		"brand":      ref.Brand,
		"image_url":  ref.ImageURL,
		"url":        ref.URL,
	}
	if ref.MinPrice != nil {
		out["min_price"] = *ref.MinPrice
		out["max_price"] = *ref.MaxPrice
	}
	return out
}

func payloadFilter(f models.Filters) *Filter {
	var must []Condition
	if f.MinPrice != nil {
		must = append(must, Condition{Key: "max_price", Range: &Range{GTE: f.MinPrice}})
	}
	if f.MaxPrice != nil {
		must = append(must, Condition{Key: "min_price", Range: &Range{LTE: f.MaxPrice}})
	}
	if len(f.Brands) > 0 {
		must = append(must, Condition{Key: "brand", Match: &MatchAny{Any: f.Brands}})
	}
	if len(must) == 0 {
		return nil
	}
	return &Filter{Must: must}
}

func refFromPayload(p map[string]any) (models.ProductRef, bool) {
	str := func(key string) string {
		s, _ := p[key].(string)
		return s
	}
	num := func(key string) *float64 {
		if v, ok := p[key].(float64); ok {
			return &v
		}
		return nil
	}

	ref := models.ProductRef{
		ID:       str("product_id"),
		Name:     str("name"),
		Brand:    str("brand"),
		MinPrice: num("min_price"),
		MaxPrice: num("max_price"),
		ImageURL: str("image_url"),
		URL:      str("url"),
	}
	return ref, ref.ID != "" && ref.Name != ""
}
