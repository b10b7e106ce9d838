// Package search ranks a user's chat messages against a free-text query.
// The index is built per request over a bounded candidate set, is immutable
// once constructed, and carries no dependencies or logging.
//
// Matching is Jaccard similarity over token sets. Tokenization is
// Unicode-aware and folds common Arabic orthography variants (hamza-carrier
// alef forms, taa marbuta, final yaa, tatweel, diacritics) so the same word
// typed differently still matches.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Doc is one candidate message.
type Doc struct {
	MessageID string
	ChatID    string
	Role      string
	Text      string
}

// Result pairs a matched message with its similarity score in (0, 1].
type Result struct {
	Doc
	Score float64
}

// Option tunes index construction.
type Option func(*Index)

// WithMinRunes skips messages shorter than n runes.
func WithMinRunes(n int) Option {
	return func(ix *Index) {
		if n >= 0 {
			ix.minRunes = n
		}
	}
}

// WithStopwords drops the given words from both documents and queries.
func WithStopwords(words []string) Option {
	return func(ix *Index) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				m[normalizeArabic(w)] = struct{}{}
			}
		}
		if len(m) > 0 {
			ix.stopwords = m
		}
	}
}

// WithMaxDocs caps how many candidates are indexed.
func WithMaxDocs(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.maxDocs = n
		}
	}
}

type entry struct {
	src    Doc
	tokens map[string]struct{}
}

// Index is a read-only similarity index, safe for concurrent use.
type Index struct {
	minRunes  int
	maxDocs   int
	stopwords map[string]struct{}
	entries   []entry
}

// New indexes docs, skipping blank or too-short texts. Options apply before
// any document is tokenized.
func New(docs []Doc, opts ...Option) *Index {
	ix := &Index{minRunes: 2}
	for _, o := range opts {
		o(ix)
	}
	for _, d := range docs {
		text := collapseSpace(d.Text)
		if text == "" || (ix.minRunes > 0 && utf8.RuneCountInString(text) < ix.minRunes) {
			continue
		}
		toks := ix.tokenize(text)
		if len(toks) == 0 {
			continue
		}
		d.Text = text
		ix.entries = append(ix.entries, entry{src: d, tokens: toks})
		if ix.maxDocs > 0 && len(ix.entries) >= ix.maxDocs {
			break
		}
	}
	return ix
}

// TopK returns up to k messages ranked by Jaccard similarity to q. Ties
// break toward shorter texts, then lexicographic message id, so the order is
// deterministic. A blank query, an empty index, or zero overlap all yield
// nil.
func (ix *Index) TopK(q string, k int) []Result {
	if len(ix.entries) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := ix.tokenize(q)
	if len(qTokens) == 0 {
		return nil
	}

	ranked := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		inter := intersection(qTokens, e.tokens)
		if inter == 0 {
			continue
		}
		union := len(qTokens) + len(e.tokens) - inter
		ranked = append(ranked, Result{Doc: e.src, Score: float64(inter) / float64(union)})
	}
	if len(ranked) == 0 {
		return nil
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		ra, rb := ranked[a], ranked[b]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		la, lb := utf8.RuneCountInString(ra.Text), utf8.RuneCountInString(rb.Text)
		if la != lb {
			return la < lb
		}
		return ra.MessageID < rb.MessageID
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func (ix *Index) tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = normalizeArabic(w)
		if w == "" {
			continue
		}
		if _, skip := ix.stopwords[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// normalizeArabic folds orthography variants into a canonical form and drops
// diacritics and tatweel. Non-Arabic text passes through unchanged.
func normalizeArabic(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	for _, r := range w {
		switch {
		case r == 'ـ': // tatweel
			continue
		case r >= 'ً' && r <= 'ْ': // harakat
			continue
		case r == 'آ' || r == 'أ' || r == 'إ': // alef variants
			b.WriteRune('ا')
		case r == 'ة': // taa marbuta -> haa
			b.WriteRune('ه')
		case r == 'ى': // alef maqsura -> yaa
			b.WriteRune('ي')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func intersection(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
