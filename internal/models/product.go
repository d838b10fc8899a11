package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// SortBy orders product lists.
type SortBy string

const (
	SortRelevance SortBy = ""
	SortPriceAsc  SortBy = "price_asc"
	SortPriceDesc SortBy = "price_desc"
	SortNameAsc   SortBy = "name_asc"
	SortNameDesc  SortBy = "name_desc"
)

// Valid reports whether s is a known sort mode.
func (s SortBy) Valid() bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc:
		return true
	}
	return false
}

// Filters narrows a product search.
type Filters struct {
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Brands   []string `json:"brands,omitempty"`
	SortBy   SortBy   `json:"sort_by,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && len(f.Brands) == 0 && f.SortBy == SortRelevance
}

// Match reports whether a product reference passes the price and brand filters.
// References without a known price pass the price bounds.
func (f Filters) Match(ref ProductRef) bool {
	if len(f.Brands) > 0 {
		ok := false
		for _, b := range f.Brands {
			if strings.EqualFold(b, ref.Brand) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MinPrice != nil && ref.MaxPrice != nil && *ref.MaxPrice < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && ref.MinPrice != nil && *ref.MinPrice > *f.MaxPrice {
		return false
	}
	return true
}

// ProductRef is the minimal product identity returned by retrieval backends.
type ProductRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Brand    string   `json:"brand,omitempty"`
	MinPrice *float64 `json:"min_price"`
	MaxPrice *float64 `json:"max_price"`
	ImageURL string   `json:"image_url,omitempty"`
	URL      string   `json:"url,omitempty"`
}

// Source is one retailer offer for a product.
type Source struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency,omitempty"`
	InStock   bool      `json:"in_stock"`
	Rating    *float64  `json:"rating,omitempty"`
	LogoURL   string    `json:"logo_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Product is the full catalog record.
type Product struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Brand          string               `json:"brand"`
	Model          string               `json:"model,omitempty"`
	Description    string               `json:"description,omitempty"`
	Specifications map[string]SpecValue `json:"specifications,omitempty"`
	ImageURLs      []string             `json:"image_urls,omitempty"`
	Sources        []Source             `json:"sources"`
}

// MinPrice is the lowest source price, nil when there are no sources.
func (p Product) MinPrice() *float64 {
	if len(p.Sources) == 0 {
		return nil
	}
	lo := p.Sources[0].Price
	for _, s := range p.Sources[1:] {
		if s.Price < lo {
			lo = s.Price
		}
	}
	return &lo
}

// MaxPrice is the highest source price, nil when there are no sources.
func (p Product) MaxPrice() *float64 {
	if len(p.Sources) == 0 {
		return nil
	}
	hi := p.Sources[0].Price
	for _, s := range p.Sources[1:] {
		if s.Price > hi {
			hi = s.Price
		}
	}
	return &hi
}

// Ref returns the product's minimal identity.
func (p Product) Ref() ProductRef {
	ref := ProductRef{
		ID:       p.ID,
		Name:     p.Name,
		Brand:    p.Brand,
		MinPrice: p.MinPrice(),
		MaxPrice: p.MaxPrice(),
	}
	if len(p.ImageURLs) > 0 {
		ref.ImageURL = p.ImageURLs[0]
	}
	if len(p.Sources) > 0 {
		ref.URL = p.Sources[0].URL
	}
	return ref
}

// MarshalJSON adds the derived price range to the encoded product.
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		MinPrice *float64 `json:"min_price"`
		MaxPrice *float64 `json:"max_price"`
	}{plain(p), p.MinPrice(), p.MaxPrice()})
}

// SpecValue is a specification entry holding either a single string or a list of strings.
type SpecValue struct {
	text   string
	list   []string
	isList bool
}

// SpecText returns a single-string spec value.
func SpecText(s string) SpecValue {
	return SpecValue{text: s}
}

// SpecList returns a list spec value.
func SpecList(values ...string) SpecValue {
	return SpecValue{list: values, isList: true}
}

// IsList reports whether the value is a list.
func (v SpecValue) IsList() bool { return v.isList }

// Values returns the value as a list.
func (v SpecValue) Values() []string {
	if v.isList {
		return v.list
	}
	if v.text == "" {
		return nil
	}
	return []string{v.text}
}

func (v SpecValue) String() string {
	if v.isList {
		return strings.Join(v.list, ", ")
	}
	return v.text
}

func (v SpecValue) MarshalJSON() ([]byte, error) {
	if v.isList {
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return json.Marshal(v.text)
}

func (v *SpecValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = SpecText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*v = SpecList(list...)
		return nil
	}
	return errors.New("specification value must be a string or a list of strings")
}
