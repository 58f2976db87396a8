package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingularize(t *testing.T) {
	cases := map[string]string{
		"pipes":      "pipe",
		"valves":     "valve",
		"facilities": "facility",
		"benches":    "bench",
		"boxes":      "box",
		"glasses":    "glass",
		"brushes":    "brush",
		"potatoes":   "potato",
		"knives":     "knife",
		"shelves":    "shelf",
		"children":   "child",
		"people":     "person",
		// already singular, must come back unchanged
		"pipe":     "pipe",
		"glass":    "glass",
		"status":   "status",
		"analysis": "analysis",
		"debris":   "debris",
		"series":   "series",
		"gas": "gas",
		// too short for the suffix rules
		"tv": "tv",
	}
	for word, want := range cases {
		assert.Equal(t, want, Singularize(word), word)
	}
}

// Singularizing an already-singularized token must be a fixed point, or
// repeated enrichment runs would drift the stored sets.
func TestSingularizeIsStable(t *testing.T) {
	words := []string{"pipes", "facilities", "benches", "knives", "glasses", "people", "valves"}
	for _, word := range words {
		once := Singularize(word)
		assert.Equal(t, once, Singularize(once), word)
	}
}

func TestNormalizeTokens(t *testing.T) {
	tokens := NormalizeTokens([]string{"Leaky pipes", "kitchen"})

	assert.Equal(t, []string{"leaky", "pipe", "kitchen"}, tokens)
}

func TestNormalizeTokensSkipsEmptyPhrases(t *testing.T) {
	tokens := NormalizeTokens([]string{"", "   ", "Broken Windows"})

	assert.Equal(t, []string{"broken", "window"}, tokens)
}
