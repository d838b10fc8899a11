package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductPriceRange(t *testing.T) {
	p := Product{ID: "iphone-15", Name: "iPhone 15"}
	assert.Nil(t, p.MinPrice())
	assert.Nil(t, p.MaxPrice())

	p.Sources = []Source{
		{Name: "FPT Shop", Price: 19990000},
		{Name: "CellphoneS", Price: 18490000},
		{Name: "Thế Giới Di Động", Price: 20990000},
	}
	require.NotNil(t, p.MinPrice())
	require.NotNil(t, p.MaxPrice())
	assert.Equal(t, 18490000.0, *p.MinPrice())
	assert.Equal(t, 20990000.0, *p.MaxPrice())
	assert.LessOrEqual(t, *p.MinPrice(), *p.MaxPrice())
}

func TestProductJSONIncludesDerivedPrices(t *testing.T) {
	empty, err := json.Marshal(Product{ID: "x", Name: "X"})
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"min_price":null`)
	assert.Contains(t, string(empty), `"max_price":null`)

	withSources, err := json.Marshal(Product{ID: "x", Name: "X", Sources: []Source{{Name: "Tiki", Price: 100}}})
	require.NoError(t, err)
	assert.Contains(t, string(withSources), `"min_price":100`)
}

func TestSpecValueUnion(t *testing.T) {
	var specs map[string]SpecValue
	require.NoError(t, json.Unmarshal([]byte(`{"chip":"A16 Bionic","colors":["Đen","Hồng"]}`), &specs))

	assert.False(t, specs["chip"].IsList())
	assert.Equal(t, "A16 Bionic", specs["chip"].String())
	assert.True(t, specs["colors"].IsList())
	assert.Equal(t, []string{"Đen", "Hồng"}, specs["colors"].Values())
	assert.Equal(t, "Đen, Hồng", specs["colors"].String())

	out, err := json.Marshal(specs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chip":"A16 Bionic","colors":["Đen","Hồng"]}`, string(out))

	var bad SpecValue
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestMessageDecodesTypedPayload(t *testing.T) {
	original := NewMessage(RoleAssistant, "So sánh", TypeProductComparison, ProductComparisonData{
		Products:   []Product{{ID: "a"}, {ID: "b"}},
		Unresolved: []string{"c"},
	})
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.ID, decoded.ID)
	payload, ok := decoded.Data.(ProductComparisonData)
	require.True(t, ok)
	assert.Len(t, payload.Products, 2)
	assert.Equal(t, []string{"c"}, payload.Unresolved)
}

func TestNewMessageDropsDataForText(t *testing.T) {
	msg := NewMessage(RoleAssistant, "hi", "", ProductListData{})
	assert.Equal(t, TypeText, msg.Type)
	assert.Nil(t, msg.Data)
	assert.NotEmpty(t, msg.ID)

	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "metadata")
}

func TestFiltersMatch(t *testing.T) {
	price := func(v float64) *float64 { return &v }
	ref := ProductRef{ID: "a55", Brand: "Samsung", MinPrice: price(7_000_000), MaxPrice: price(8_500_000)}

	assert.True(t, Filters{}.Match(ref))
	assert.True(t, Filters{Brands: []string{"samsung"}}.Match(ref))
	assert.False(t, Filters{Brands: []string{"Apple"}}.Match(ref))
	assert.True(t, Filters{MaxPrice: price(8_000_000)}.Match(ref))
	assert.False(t, Filters{MaxPrice: price(6_000_000)}.Match(ref))
	assert.False(t, Filters{MinPrice: price(9_000_000)}.Match(ref))
	assert.True(t, Filters{MaxPrice: price(1)}.Match(ProductRef{ID: "unpriced"}))
}

func TestErrorsWrap(t *testing.T) {
	err := fmt.Errorf("catalog: %w", ErrBackendUnavailable)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))

	var verr *ValidationError
	assert.True(t, errors.As(fmt.Errorf("send: %w", NewValidationError("message", "too long")), &verr))
	assert.Equal(t, "message: too long", verr.Error())
}
