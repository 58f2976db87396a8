package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSetAddDeduplicates(t *testing.T) {
	s := NewStringSet("pipe", "leak", "pipe", "")

	assert.Len(t, s, 2)
	assert.True(t, s.Contains("pipe"))
	assert.True(t, s.Contains("leak"))
	assert.False(t, s.Contains(""))
}

func TestStringSetValuesSorted(t *testing.T) {
	s := NewStringSet("window", "door", "lamp")

	assert.Equal(t, []string{"door", "lamp", "window"}, s.Values())
}

func TestStringSetUnion(t *testing.T) {
	a := NewStringSet("pipe", "leak")
	b := NewStringSet("leak", "kitchen")

	union := a.Union(b)

	assert.Equal(t, []string{"kitchen", "leak", "pipe"}, union.Values())
	// inputs untouched
	assert.Len(t, a, 2)
	assert.Len(t, b, 2)
}

func TestStringSetJSONRoundTrip(t *testing.T) {
	s := NewStringSet("pipe", "leak", "kitchen")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["kitchen","leak","pipe"]`, string(data))

	var decoded StringSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s.Values(), decoded.Values())
}

func TestStringSetUnmarshalDeduplicates(t *testing.T) {
	var s StringSet
	require.NoError(t, json.Unmarshal([]byte(`["pipe","pipe","leak"]`), &s))

	assert.Equal(t, []string{"leak", "pipe"}, s.Values())
}

func TestJoinSplitTokensRoundTrip(t *testing.T) {
	s := NewStringSet("pipe", "leak", "kitchen")

	joined := s.JoinTokens()
	assert.Equal(t, "kitchen leak pipe", joined)

	assert.Equal(t, s.Values(), SplitTokens(joined).Values())
}

func TestSplitTokensEmpty(t *testing.T) {
	assert.Empty(t, SplitTokens("").Values())
	assert.Empty(t, SplitTokens("   ").Values())
}
