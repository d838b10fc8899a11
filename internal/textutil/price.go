package textutil

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// USDToVND converts dollar amounts in English queries to catalog prices.
const USDToVND = 25_000

var vndPriceRegex = regexp.MustCompile(`(?i)(\d{1,3}(?:[.,]\d{3})+|\d{4,})\s*(?:đ|₫|vnđ|vnd|dong)`)

// FormatVND groups digits by three with dots: 19990000 -> "19.990.000".
func FormatVND(price float64) string {
	digits := strconv.FormatInt(int64(price), 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)

	out := strings.Join(parts, ".")
	if neg {
		out = "-" + out
	}
	return out
}

// ExtractVNDPrice finds the first price written in dong, like "18.490.000₫".
func ExtractVNDPrice(text string) (float64, bool) {
	m := vndPriceRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// UnitMultiplier returns the VND multiplier for a price unit word.
// Bare numbers below one thousand are read as millions ("dưới 8" means 8 triệu).
func UnitMultiplier(unit string, amount float64) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "triệu", "trieu", "tr", "m", "củ", "cu":
		return 1_000_000
	case "k", "nghìn", "nghin", "ngàn", "ngan":
		return 1_000
	case "$", "usd", "đô", "do", "dollar", "dollars":
		return USDToVND
	case "đ", "₫", "vnd", "vnđ", "dong", "đồng":
		return 1
	}
	if amount < 1_000 {
		return 1_000_000
	}
	return 1
}

// Domain returns the host of a URL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
