package intent

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/eldtechnologies/pricechat/internal/catalog"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

// NameSource lists product names. catalog.Catalog satisfies it.
type NameSource interface {
	Names(ctx context.Context) ([]catalog.NameEntry, error)
}

const namesKey = "names"

// pattern is one word sequence that identifies a product.
type pattern struct {
	words []string
	id    string
}

// nameIndex spots product mentions in free text.
type nameIndex struct {
	patterns []pattern // longest first
}

// mention is a product found at words[start:end].
type mention struct {
	id         string
	start, end int
}

func buildIndex(entries []catalog.NameEntry) *nameIndex {
	idx := &nameIndex{}
	seen := make(map[string]bool)
	add := func(words []string, id string) {
		if len(words) == 0 {
			return
		}
		key := strings.Join(words, " ")
		if seen[key] {
			return
		}
		seen[key] = true
		idx.patterns = append(idx.patterns, pattern{words: words, id: id})
	}

	for _, e := range entries {
		name := textutil.Words(e.Name)
		add(name, e.ID)
		if model := textutil.Words(e.Model); distinctive(model) {
			add(model, e.ID)
		}
		// "Samsung Galaxy S24" is also mentioned as "Galaxy S24"
		if len(name) > 1 && textutil.IsBrandWord(name[0]) && distinctive(name[1:]) {
			add(name[1:], e.ID)
		}
	}

	sort.SliceStable(idx.patterns, func(i, j int) bool {
		return len(idx.patterns[i].words) > len(idx.patterns[j].words)
	})
	return idx
}

// distinctive rejects word sequences too generic to name a product, like a bare number.
func distinctive(words []string) bool {
	if len(words) > 1 {
		return true
	}
	if len(words) == 0 {
		return false
	}
	w := words[0]
	var letters, digits bool
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letters = true
		case unicode.IsDigit(r):
			digits = true
		}
	}
	return letters && digits && len(w) >= 3
}

// find returns the longest non-overlapping mentions in word order.
func (idx *nameIndex) find(words []string) []mention {
	var found []mention
	for i := 0; i < len(words); {
		matched := false
		for _, p := range idx.patterns {
			if hasPrefix(words[i:], p.words) {
				found = append(found, mention{id: p.id, start: i, end: i + len(p.words)})
				i += len(p.words)
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	return found
}

func hasPrefix(words, prefix []string) bool {
	if len(prefix) > len(words) {
		return false
	}
	for i, w := range prefix {
		if words[i] != w {
			return false
		}
	}
	return true
}

// names caches the index built from a NameSource.
type names struct {
	source NameSource
	cache  *ristretto.Cache
	ttl    time.Duration
	group  singleflight.Group
	logger zerolog.Logger
}

func newNames(source NameSource, ttl time.Duration, logger zerolog.Logger) (*names, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &names{source: source, cache: cache, ttl: ttl, logger: logger}, nil
}

// index returns the cached index, loading it on a miss.
// A load failure yields an empty index that is not cached.
func (n *names) index(ctx context.Context) *nameIndex {
	if n.source == nil {
		return &nameIndex{}
	}
	if v, ok := n.cache.Get(namesKey); ok {
		return v.(*nameIndex)
	}

	v, err, _ := n.group.Do(namesKey, func() (any, error) {
		entries, err := n.source.Names(ctx)
		if err != nil {
			return nil, err
		}
		idx := buildIndex(entries)
		n.cache.SetWithTTL(namesKey, idx, 1, n.ttl)
		n.cache.Wait()
		return idx, nil
	})
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to load product names")
		return &nameIndex{}
	}
	return v.(*nameIndex)
}

func (n *names) invalidate() {
	n.cache.Del(namesKey)
}

func (n *names) close() {
	n.cache.Close()
}
