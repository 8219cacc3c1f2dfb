package civic

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords excluded from normalized keys and token comparison. Generic
// project words carry no identity: "the Main St bridge project" and
// "Main St bridge" must normalize to the same key.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "for": {}, "and": {},
	"project": {}, "new": {}, "at": {}, "in": {}, "on": {},
}

// NormalizeTokens lowercases, strips punctuation and drops stopwords,
// returning the remaining tokens in input order.
func NormalizeTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}

// NormalizedKey derives the deterministic candidate-lookup key from a
// project name and location. Order-insensitive: tokens are sorted and
// de-duplicated. The key is never used for uniqueness enforcement.
func NormalizedKey(name, location string) string {
	tokens := append(NormalizeTokens(name), NormalizeTokens(location)...)
	sort.Strings(tokens)
	uniq := tokens[:0]
	var prev string
	for _, t := range tokens {
		if t == prev {
			continue
		}
		uniq = append(uniq, t)
		prev = t
	}
	return strings.Join(uniq, "-")
}
