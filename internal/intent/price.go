package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

const (
	amount = `(\$)?\s*(\d{1,3}(?:[.,]\d{3})+|\d+(?:[.,]\d+)?)\s*`
	unit   = `(triệu|trieu|tr|củ|cu|nghìn|nghin|ngàn|ngan|k|m|usd|đô|đồng|vnđ|vnd|đ|₫)?`
	// end keeps a unit like "m" from matching the start of a longer word
	end = `(?:[^\p{L}\p{N}]|$)`
)

var (
	rangePattern  = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}.,])(từ|tu|between|from)?\s*` + amount + unit + `\s*(?:-|–|~|đến|den|tới|toi|to|and)\s*` + amount + unit + end)
	maxPattern    = regexp.MustCompile(`(?i)(?:dưới|duoi|không quá|khong qua|tối đa|toi da|max|under|below|less than|rẻ hơn|re hon|<)\s*` + amount + unit + end)
	minPattern    = regexp.MustCompile(`(?i)(?:trên|tren|hơn|hon|từ|tối thiểu|toi thieu|ít nhất|it nhat|over|above|more than|at least|>)\s*` + amount + unit + end)
	aroundPattern = regexp.MustCompile(`(?i)(?:khoảng|khoang|tầm|tam|around|about|~)\s*` + amount + unit + end)
)

// aroundSpread widens "khoảng 10 triệu" into a band around the amount.
const aroundSpread = 0.1

var sortCues = []struct {
	phrase string
	sortBy models.SortBy
}{
	{"rẻ nhất", models.SortPriceAsc},
	{"giá thấp", models.SortPriceAsc},
	{"cheapest", models.SortPriceAsc},
	{"đắt nhất", models.SortPriceDesc},
	{"cao cấp nhất", models.SortPriceDesc},
	{"giá cao", models.SortPriceDesc},
	{"most expensive", models.SortPriceDesc},
}

// parsePrices extracts price bounds from text and returns the text with the
// price phrases removed.
func parsePrices(text string) (models.Filters, string) {
	var f models.Filters

	if m := rangePattern.FindStringSubmatchIndex(text); m != nil {
		sub := submatches(text, m)
		// sub: 1 prefix, 2 $, 3 number, 4 unit, 5 $, 6 number, 7 unit
		if sub[1] != "" || sub[4] != "" || sub[7] != "" || sub[2] != "" || sub[5] != "" {
			loUnit, hiUnit := sub[4], sub[7]
			if loUnit == "" {
				loUnit = hiUnit
			}
			loDollar := sub[2] != "" || (sub[5] != "" && sub[4] == "")
			lo, okLo := toVND(sub[3], loUnit, loDollar)
			hi, okHi := toVND(sub[6], hiUnit, sub[5] != "" || sub[2] != "")
			if okLo && okHi {
				if lo > hi {
					lo, hi = hi, lo
				}
				f.MinPrice, f.MaxPrice = &lo, &hi
				return f, cut(text, m)
			}
		}
	}

	if m := aroundPattern.FindStringSubmatchIndex(text); m != nil {
		sub := submatches(text, m)
		if v, ok := toVND(sub[2], sub[3], sub[1] != ""); ok {
			lo, hi := v*(1-aroundSpread), v*(1+aroundSpread)
			f.MinPrice, f.MaxPrice = &lo, &hi
			return f, cut(text, m)
		}
	}

	rest := text
	if m := maxPattern.FindStringSubmatchIndex(rest); m != nil {
		sub := submatches(rest, m)
		if v, ok := toVND(sub[2], sub[3], sub[1] != ""); ok {
			f.MaxPrice = &v
			rest = cut(rest, m)
		}
	}
	if m := minPattern.FindStringSubmatchIndex(rest); m != nil {
		sub := submatches(rest, m)
		if v, ok := toVND(sub[2], sub[3], sub[1] != ""); ok {
			f.MinPrice = &v
			rest = cut(rest, m)
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		f.MinPrice, f.MaxPrice = f.MaxPrice, f.MinPrice
	}
	return f, rest
}

// parseSort detects ordering requests like "rẻ nhất".
func parseSort(lower string) models.SortBy {
	for _, cue := range sortCues {
		if strings.Contains(lower, cue.phrase) {
			return cue.sortBy
		}
	}
	return models.SortRelevance
}

func toVND(number, unitWord string, dollar bool) (float64, bool) {
	v, ok := parseAmount(number)
	if !ok || v <= 0 {
		return 0, false
	}
	if dollar && unitWord == "" {
		unitWord = "$"
	}
	return v * textutil.UnitMultiplier(unitWord, v), true
}

// parseAmount reads "8", "8.5", "1,5" and grouped thousands like "8.000.000".
func parseAmount(s string) (float64, bool) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ',' })
	grouped := len(parts) > 1
	for _, p := range parts[1:] {
		if len(p) != 3 {
			grouped = false
		}
	}
	if grouped {
		s = strings.Join(parts, "")
	} else {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func submatches(text string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = text[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}

func cut(text string, idx []int) string {
	return text[:idx[0]] + " " + text[idx[1]:]
}
