package intent

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

var (
	explicitIDPattern = regexp.MustCompile(`(?i)(?:\bid:\s*|#)([a-z0-9][a-z0-9_-]*)`)
	compareSplit      = regexp.MustCompile(`(?i)\s+(?:và|với|vs\.?|versus|hay|hoặc|or|and|with)\s+|\s*[,/;]\s*`)
)

var (
	comparePhrases = []string{"so sánh", "compare", "khác nhau", "khác gì", "difference between"}
	compareWords   = map[string]bool{"vs": true, "versus": true}
	detailPhrases  = []string{"chi tiết", "thông số", "cấu hình", "thông tin", "đánh giá", "specs", "spec", "details", "detail", "review"}
	widenPhrases   = []string{"tương tự", "giống", "như", "thay thế", "các", "những", "similar", "like", "alternatives"}
	productPhrases = []string{
		"điện thoại", "dt", "đt", "phone", "smartphone", "máy", "tìm", "mua", "giá", "rẻ", "cheap", "best",
		"pin", "camera", "chụp ảnh", "chơi game", "gaming", "màn hình", "sạc", "ram", "bộ nhớ",
	}
	// fillerWords never name a product on their own.
	fillerWords = map[string]bool{
		"so": true, "sánh": true, "compare": true, "giữa": true, "between": true, "nhau": true,
		"cái": true, "nào": true, "tốt": true, "hơn": true, "nên": true, "mua": true, "chọn": true,
		"máy": true, "điện": true, "thoại": true, "chiếc": true, "con": true, "giá": true, "có": true,
		"không": true, "bao": true, "nhiêu": true, "which": true, "is": true, "better": true, "the": true,
		"phone": true, "a": true,
	}
)

// alternativeWords also read as "good" or a plain "or", so they only make a
// comparison when a part names a known product.
var alternativeWords = map[string]bool{"hay": true, "hoặc": true, "or": true}

// Rules resolves intents with keyword rules and a product-name index built from the catalog.
type Rules struct {
	names  *names
	logger zerolog.Logger
}

// NewRules creates a rules resolver. The name index is reloaded from source after ttl.
// A nil source disables product mentions.
func NewRules(source NameSource, ttl time.Duration, logger zerolog.Logger) (*Rules, error) {
	n, err := newNames(source, ttl, logger)
	if err != nil {
		return nil, err
	}
	return &Rules{names: n, logger: logger}, nil
}

// Invalidate drops the cached name index so the next message reloads it.
func (r *Rules) Invalidate() { r.names.invalidate() }

// Close releases the name cache.
func (r *Rules) Close() { r.names.close() }

// Resolve classifies message. Empty messages get the welcome on a new session
// and a nudge otherwise.
func (r *Rules) Resolve(ctx context.Context, history []models.Message, message string) Intent {
	text := strings.TrimSpace(message)
	if text == "" {
		if len(history) == 0 {
			return Chat(Welcome)
		}
		return Chat(Nudge)
	}
	return r.classify(ctx, text)
}

func (r *Rules) classify(ctx context.Context, text string) Intent {
	idx := r.names.index(ctx)
	lower := strings.ToLower(text)
	words := textutil.Words(text)
	padded := " " + strings.Join(words, " ") + " "

	explicit := explicitIDs(text)
	ids := append([]string{}, explicit...)
	for _, m := range idx.find(words) {
		ids = append(ids, m.id)
	}
	ids = Compare(ids...).ProductIDs

	if cue := compareCue(padded, words); cue != cueNone {
		segmentIDs, known := r.segmentIDs(idx, text)
		if len(segmentIDs) >= 2 && (cue == cueStrong || known > 0) {
			return Compare(segmentIDs...)
		}
	}
	if len(ids) >= 2 {
		return Compare(ids...)
	}

	filters, rest := parsePrices(text)
	filters.SortBy = parseSort(lower)
	filters.Brands = textutil.DetectBrands(rest)
	hasPrice := filters.MinPrice != nil || filters.MaxPrice != nil

	if len(ids) == 1 {
		if len(explicit) == 1 || containsAny(padded, detailPhrases) || (!hasPrice && !containsAny(padded, widenPhrases)) {
			return Detail(ids[0])
		}
	}

	if len(ids) == 1 || hasPrice || len(filters.Brands) > 0 || filters.SortBy != models.SortRelevance ||
		containsAny(padded, productPhrases) {
		return Search(strings.Join(textutil.Words(rest), " "), filters)
	}

	return Chat("")
}

// segmentIDs splits a comparison request into its parts and maps each part to
// a product id. Parts naming no known product are kept as raw ids so the
// comparison reports them as unresolved; parts holding a price bound are
// skipped. known counts the parts resolved to an explicit id or a catalog name.
func (r *Rules) segmentIDs(idx *nameIndex, text string) (ids []string, known int) {
	cleaned := strings.ToLower(text)
	for _, phrase := range comparePhrases {
		cleaned = strings.ReplaceAll(cleaned, phrase, " ")
	}

	for _, segment := range compareSplit.Split(cleaned, -1) {
		if found := explicitIDs(segment); len(found) > 0 {
			ids = append(ids, found...)
			known++
			continue
		}
		words := textutil.Words(segment)
		if mentions := idx.find(words); len(mentions) > 0 {
			for _, m := range mentions {
				ids = append(ids, m.id)
			}
			known++
			continue
		}
		if f, _ := parsePrices(segment); f.MinPrice != nil || f.MaxPrice != nil {
			continue
		}
		if id := rawID(words); id != "" {
			ids = append(ids, id)
		}
	}
	return Compare(ids...).ProductIDs, known
}

// rawID slugs a segment that looks like a product name but is not in the catalog.
func rawID(words []string) string {
	var kept []string
	named := false
	for _, w := range words {
		if fillerWords[w] {
			continue
		}
		kept = append(kept, w)
		if textutil.IsBrandWord(w) || strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			named = true
		}
	}
	if !named {
		return ""
	}
	return strings.Join(kept, "-")
}

func explicitIDs(text string) []string {
	var ids []string
	for _, m := range explicitIDPattern.FindAllStringSubmatch(text, -1) {
		ids = append(ids, strings.ToLower(m[1]))
	}
	return ids
}

type cueStrength int

const (
	cueNone cueStrength = iota
	cueAlternative
	cueStrong
)

func compareCue(padded string, words []string) cueStrength {
	if containsAny(padded, comparePhrases) {
		return cueStrong
	}
	cue := cueNone
	for _, w := range words {
		if compareWords[w] {
			return cueStrong
		}
		if alternativeWords[w] {
			cue = cueAlternative
		}
	}
	return cue
}

// containsAny matches whole-word phrases against space-padded lowercase words.
func containsAny(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
