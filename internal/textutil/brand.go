// Package textutil holds text helpers for Vietnamese phone shopping queries.
package textutil

import (
	"regexp"
	"strings"
)

// brandAliases maps lowercase aliases to canonical brand names.
var brandAliases = map[string]string{
	"ip":      "Apple",
	"iphone":  "Apple",
	"apple":   "Apple",
	"sam":     "Samsung",
	"samsung": "Samsung",
	"ss":      "Samsung",
	"galaxy":  "Samsung",
	"xiaomi":  "Xiaomi",
	"mi":      "Xiaomi",
	"redmi":   "Xiaomi",
	"poco":    "Xiaomi",
	"oppo":    "Oppo",
	"vivo":    "Vivo",
	"realme":  "Realme",
	"nokia":   "Nokia",
	"itel":    "Itel",
	"vsmart":  "VinSmart",
	"lg":      "LG",
	"sony":    "Sony",
	"huawei":  "Huawei",
	"honor":   "Honor",
	"asus":    "Asus",
	"oneplus": "OnePlus",
	"tecno":   "Tecno",
	"mobell":  "Mobell",
	"masstel": "Masstel",
}

// ambiguousAliases only count as brands when they stand alone as the brand
// field, never when spotted inside free text.
var ambiguousAliases = map[string]bool{"ip": true, "sam": true, "ss": true, "mi": true}

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// NormalizeBrand maps a brand string to its canonical name.
// Unknown brands are returned title-cased; an empty brand becomes "Unknown".
func NormalizeBrand(brand string) string {
	lower := strings.ToLower(strings.TrimSpace(brand))
	if lower == "" {
		return "Unknown"
	}
	if canonical, ok := brandAliases[lower]; ok {
		return canonical
	}
	if first, _, found := strings.Cut(lower, " "); found {
		if canonical, ok := brandAliases[first]; ok {
			return canonical
		}
	}
	return titleCase(lower)
}

// DetectBrands returns the canonical brands mentioned in text, in order of first mention.
func DetectBrands(text string) []string {
	var brands []string
	seen := make(map[string]bool)
	for _, w := range Words(text) {
		if ambiguousAliases[w] {
			continue
		}
		if canonical, ok := brandAliases[w]; ok && !seen[canonical] {
			seen[canonical] = true
			brands = append(brands, canonical)
		}
	}
	return brands
}

// IsBrandWord reports whether a lowercase word is a brand alias.
func IsBrandWord(w string) bool {
	_, ok := brandAliases[w]
	return ok
}

// Words splits text into lowercase letter/digit words.
func Words(text string) []string {
	return wordRegex.FindAllString(strings.ToLower(text), -1)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
