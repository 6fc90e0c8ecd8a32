package entities

import (
	"strings"
	"unicode"
)

// Watchlist matches known entity names as whole-token phrases,
// case-insensitively.
type Watchlist struct {
	byFirst map[string][]phrase
}

type phrase struct {
	name   string
	tokens []string
}

// NewWatchlist builds a matcher from entity names. Names that are a single
// stop word are skipped.
func NewWatchlist(names []string) *Watchlist {
	w := &Watchlist{byFirst: make(map[string][]phrase)}
	for _, n := range names {
		toks := tokenize(n)
		if len(toks) == 0 || (len(toks) == 1 && isStopWord(toks[0])) {
			continue
		}
		w.byFirst[toks[0]] = append(w.byFirst[toks[0]], phrase{name: strings.TrimSpace(n), tokens: toks})
	}
	return w
}

// Len returns the number of phrases.
func (w *Watchlist) Len() int {
	n := 0
	for _, ps := range w.byFirst {
		n += len(ps)
	}
	return n
}

// Match returns the canonical names of every phrase found in text, each once,
// in order of first appearance.
func (w *Watchlist) Match(text string) []string {
	if w == nil || len(w.byFirst) == 0 {
		return nil
	}

	toks := tokenize(text)
	seen := make(map[string]bool)
	var out []string
	for i, tok := range toks {
		for _, p := range w.byFirst[tok] {
			if i+len(p.tokens) > len(toks) || seen[p.name] {
				continue
			}
			if equalTokens(toks[i:i+len(p.tokens)], p.tokens) {
				seen[p.name] = true
				out = append(out, p.name)
			}
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func equalTokens(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
