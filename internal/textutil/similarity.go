package textutil

import "strings"

// TokenSet splits text into a set of lowercase whitespace-separated tokens.
func TokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

// JaccardSimilarity computes intersection-over-union of the word sets of two
// strings. Returns 1 when both are empty and 0 when exactly one is empty.
func JaccardSimilarity(a, b string) float64 {
	setA := TokenSet(a)
	setB := TokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
