package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/pricechat/internal/models"
)

func fixtures() []models.Product {
	return []models.Product{
		{
			ID: "iphone-15", Name: "iPhone 15", Brand: "Apple", Model: "A3090",
			Description: "Chip A16 Bionic, Dynamic Island",
			Specifications: map[string]models.SpecValue{
				"chip":   models.SpecText("A16 Bionic"),
				"colors": models.SpecList("Đen", "Hồng"),
			},
			Sources: []models.Source{
				{Name: "FPT Shop", Price: 19_990_000, InStock: true},
				{Name: "CellphoneS", Price: 18_490_000, InStock: true},
			},
		},
		{
			ID: "galaxy-s24", Name: "Samsung Galaxy S24", Brand: "Samsung", Model: "SM-S921",
			Description: "Exynos 2400, Galaxy AI",
			Sources:     []models.Source{{Name: "Thế Giới Di Động", Price: 20_990_000, InStock: true}},
		},
		{
			ID: "galaxy-a55", Name: "Samsung Galaxy A55", Brand: "Samsung",
			Sources: []models.Source{{Name: "Tiki", Price: 7_990_000, InStock: true}},
		},
		{
			ID: "redmi-note-13", Name: "Xiaomi Redmi Note 13", Brand: "Xiaomi",
			Sources: []models.Source{{Name: "Shopee", Price: 4_290_000, InStock: true}},
		},
		{ID: "nokia-unpriced", Name: "Nokia G42", Brand: "Nokia"},
	}
}

func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()
	ctx := context.Background()

	mem, err := NewMemoryCatalog(fixtures()...)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	lite, err := NewSQLiteCatalog(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, lite.Upsert(ctx, fixtures()...))
	t.Cleanup(func() { lite.Close() })

	return map[string]Catalog{"memory": mem, "sqlite": lite}
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Ref.ID)
	}
	return ids
}

func price(v float64) *float64 { return &v }

func TestCatalogGet(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, err := c.Get(ctx, "iphone-15")
			require.NoError(t, err)
			assert.Equal(t, "iPhone 15", p.Name)
			assert.Equal(t, 18_490_000.0, *p.MinPrice())
			assert.True(t, p.Specifications["colors"].IsList())

			_, err = c.Get(ctx, "iphone-99")
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestCatalogGetManyKeepsRequestOrder(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			products, err := c.GetMany(context.Background(), []string{"galaxy-s24", "unknown", "iphone-15"})
			require.NoError(t, err)
			require.Len(t, products, 2)
			assert.Equal(t, "galaxy-s24", products[0].ID)
			assert.Equal(t, "iphone-15", products[1].ID)
		})
	}
}

func TestCatalogSearch(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			hits, err := c.Search(ctx, "galaxy", models.Filters{}, 10)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"galaxy-s24", "galaxy-a55"}, hitIDs(hits))

			hits, err = c.Search(ctx, "", models.Filters{Brands: []string{"samsung"}, SortBy: models.SortPriceAsc}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"galaxy-a55", "galaxy-s24"}, hitIDs(hits))

			hits, err = c.Search(ctx, "điện thoại", models.Filters{MaxPrice: price(8_000_000), SortBy: models.SortPriceDesc}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"galaxy-a55", "redmi-note-13", "nokia-unpriced"}, hitIDs(hits))

			hits, err = c.Search(ctx, "", models.Filters{}, 2)
			require.NoError(t, err)
			assert.Len(t, hits, 2)

			hits, err = c.Search(ctx, "pixel", models.Filters{}, 10)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestCatalogEmptyQueryKeepsInsertionOrder(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			hits, err := c.Search(context.Background(), "", models.Filters{}, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"iphone-15", "galaxy-s24", "galaxy-a55", "redmi-note-13", "nokia-unpriced"}, hitIDs(hits))
		})
	}
}

func TestCatalogUpsertReplaces(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			updated := fixtures()[0]
			updated.Sources = []models.Source{{Name: "Tiki", Price: 17_000_000}}
			require.NoError(t, c.Upsert(ctx, updated))

			p, err := c.Get(ctx, "iphone-15")
			require.NoError(t, err)
			assert.Equal(t, 17_000_000.0, *p.MinPrice())

			names, err := c.Names(ctx)
			require.NoError(t, err)
			require.Len(t, names, 5)
			assert.Equal(t, NameEntry{ID: "iphone-15", Name: "iPhone 15", Model: "A3090", Brand: "Apple"}, names[0])
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"id": "iphone-15", "name": "iPhone 15", "brand": "Apple",
		 "specifications": {"ram": "6GB", "colors": ["Đen", "Xanh"]},
		 "sources": [{"name": "FPT Shop", "url": "https://fptshop.com.vn/iphone-15", "price": 19990000, "in_stock": true}]}
	]`), 0o644))

	products, err := LoadFile(good)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "6GB", products[0].Specifications["ram"].String())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name": "no id"}]`), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"samsung", "galaxy"}, tokenize("Tìm điện thoại Samsung Galaxy"))
	assert.Empty(t, tokenize("  điện thoại  "))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"iphone-15","name":"iPhone 15","brand":"Apple","sources":[]}]`), 0o644))

	c, err := Open(ctx, "memory", nil, "", path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	p, err := c.Get(ctx, "iphone-15")
	require.NoError(t, err)
	assert.Equal(t, "iPhone 15", p.Name)

	sqlite, err := Open(ctx, "sqlite", nil, filepath.Join(t.TempDir(), "catalog.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	assert.NoError(t, sqlite.Ping(ctx))

	_, err = Open(ctx, "postgres", nil, "", "")
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = Open(ctx, "mongo", nil, "", "")
	assert.ErrorContains(t, err, "unknown catalog driver")

	_, err = Open(ctx, "memory", nil, "", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
