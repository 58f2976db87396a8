package enrich

import "strings"

// Irregular plurals the suffix rules below cannot reach.
var irregularSingulars = map[string]string{
	"children": "child",
	"feet":     "foot",
	"geese":    "goose",
	"halves":   "half",
	"knives":   "knife",
	"leaves":   "leaf",
	"men":      "man",
	"mice":     "mouse",
	"people":   "person",
	"shelves":  "shelf",
	"teeth":    "tooth",
	"wolves":   "wolf",
	"women":    "woman",
}

// Words that look plural but are not, or have no distinct singular.
var invariantWords = map[string]bool{
	"debris":    true,
	"equipment": true,
	"gas":       true,
	"glasses":   false, // handled by the -sses rule; listed here for clarity
	"news":      true,
	"series":    true,
	"species":   true,
	"stairs":    false,
	"water":     true,
}

// NormalizeTokens splits each phrase on whitespace, lower-cases and trims
// every token, and singularizes it. The result feeds an add-to-set merge,
// so duplicates are harmless here.
func NormalizeTokens(phrases []string) []string {
	var tokens []string
	for _, phrase := range phrases {
		for _, word := range strings.Fields(phrase) {
			if t := Singularize(strings.ToLower(strings.TrimSpace(word))); t != "" {
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

// Singularize returns the singular of a plural noun using suffix heuristics.
// A word that is already singular comes back unchanged; that invariant is
// what keeps repeated enrichment runs stable.
func Singularize(word string) string {
	if len(word) < 3 {
		return word
	}
	if singular, ok := irregularSingulars[word]; ok {
		return singular
	}
	if invariant, ok := invariantWords[word]; ok && invariant {
		return word
	}

	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		// "facilities" -> "facility", but keep short words like "ties" intact
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "zes"), strings.HasSuffix(word, "ches"),
		strings.HasSuffix(word, "shes"), strings.HasSuffix(word, "oes"):
		// "glasses" -> "glass", "boxes" -> "box", "benches" -> "bench"
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"),
		strings.HasSuffix(word, "is"):
		// "glass", "status", "analysis" are already singular
		return word
	case strings.HasSuffix(word, "s"):
		// "pipes" -> "pipe"
		return word[:len(word)-1]
	}
	return word
}
