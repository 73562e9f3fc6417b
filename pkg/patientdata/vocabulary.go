package patientdata

import (
	"sort"
	"strings"
)

const (
	SepToken         = "[SEP]"
	ClsToken         = "[CLS]"
	BackgroundPrefix = "BG_"
)

// SpecialPrefixes never count towards content length and always survive
// code-type filtering.
var SpecialPrefixes = []string{"[", "BG_", "BG"}

// Vocabulary maps token strings to integer ids.
type Vocabulary map[string]int

// TokenSet is a set of token ids.
type TokenSet map[int]struct{}

func (s TokenSet) Contains(id int) bool {
	_, ok := s[id]
	return ok
}

func HasAnyPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// IDsWithPrefix returns the ids of every token whose string starts with one of
// the prefixes.
func (v Vocabulary) IDsWithPrefix(prefixes ...string) TokenSet {
	out := make(TokenSet)
	for code, id := range v {
		if HasAnyPrefix(code, prefixes) {
			out[id] = struct{}{}
		}
	}
	return out
}

func (v Vocabulary) SpecialIDs() TokenSet {
	return v.IDsWithPrefix(SpecialPrefixes...)
}

func (v Vocabulary) BackgroundIDs() TokenSet {
	return v.IDsWithPrefix(BackgroundPrefix)
}

func (v Vocabulary) Lookup(token string) (int, bool) {
	id, ok := v[token]
	return id, ok
}

// IDs returns the set of all token ids.
func (v Vocabulary) IDs() TokenSet {
	out := make(TokenSet, len(v))
	for _, id := range v {
		out[id] = struct{}{}
	}
	return out
}

// Tokens returns token strings ordered by id.
func (v Vocabulary) Tokens() []string {
	tokens := make([]string, 0, len(v))
	for token := range v {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return v[tokens[i]] < v[tokens[j]]
	})
	return tokens
}
