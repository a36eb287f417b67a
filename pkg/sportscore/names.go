package sportscore

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a player name for cross-venue matching.
// Feed names like "Djokovic N." and market titles like "Novak Djokovic"
// need to land on comparable forms.
func NormalizeName(name string) string {
	name = strings.ToLower(name)

	// Strip accents: "Alcaraz Garfia" and "Muñoz" style names appear
	// with and without diacritics depending on the venue.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	// Drop abbreviated given-name initials ("djokovic n." -> "djokovic").
	fields := strings.Fields(name)
	kept := fields[:0]
	for _, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if len(f) <= 1 {
			continue
		}
		kept = append(kept, f)
	}

	return strings.Join(kept, " ")
}

// MatchesName reports whether a feed player name plausibly refers to the
// same person as a market-title name. Surname containment after
// normalization is the comparison: abbreviated feed names keep the
// surname intact.
func MatchesName(feedName, marketName string) bool {
	a := NormalizeName(feedName)
	b := NormalizeName(marketName)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	// Every token of the shorter form must appear in the longer one.
	short, long := a, b
	if len(strings.Fields(b)) < len(strings.Fields(a)) {
		short, long = b, a
	}
	longTokens := make(map[string]bool)
	for _, tok := range strings.Fields(long) {
		longTokens[tok] = true
	}
	for _, tok := range strings.Fields(short) {
		if !longTokens[tok] {
			return false
		}
	}
	return true
}
