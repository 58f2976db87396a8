package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// StringSet is an unordered, deduplicated set of tokens. It marshals as a
// sorted JSON array in the primary store and as a single space-joined string
// in the search index (the index has no set-of-strings field type).
// JoinTokens/SplitTokens are the only conversion points between the two
// representations; the conversion is lossy for tokens containing whitespace,
// which the enrichment normalizer never produces.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given tokens, ignoring empty ones.
func NewStringSet(tokens ...string) StringSet {
	s := make(StringSet, len(tokens))
	s.Add(tokens...)
	return s
}

// Add inserts tokens into the set, ignoring empty ones.
func (s StringSet) Add(tokens ...string) {
	for _, t := range tokens {
		if t != "" {
			s[t] = struct{}{}
		}
	}
}

// Contains reports whether token is in the set.
func (s StringSet) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

// Union returns a new set holding every token of s and other.
func (s StringSet) Union(other StringSet) StringSet {
	out := make(StringSet, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Values returns the tokens in sorted order.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// JoinTokens serializes the set for the search index.
func (s StringSet) JoinTokens() string {
	return strings.Join(s.Values(), " ")
}

// SplitTokens reconstructs a set from its index representation. A round trip
// through JoinTokens yields the same set regardless of join order.
func SplitTokens(joined string) StringSet {
	return NewStringSet(strings.Fields(joined)...)
}

// MarshalJSON encodes the set as a sorted array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes an array of tokens, deduplicating as it goes.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*s = NewStringSet(tokens...)
	return nil
}
