package entities

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopPrefixes are Spanish articles and prepositions a recognizer tends to
// glue to the front of a span.
var stopPrefixes = []string{
	"el ", "la ", "los ", "las ", "lo ",
	"un ", "una ", "unos ", "unas ",
	"al ", "del ", "de ", "en ", "con ", "por ", "para ", "sin ", "sobre ", "a ",
}

// stopWords is stopPrefixes without the trailing space. A span made of one
// of them alone is never an entity.
var stopWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(stopPrefixes))
	for _, p := range stopPrefixes {
		m[strings.TrimSpace(p)] = struct{}{}
	}
	return m
}()

func isStopWord(s string) bool {
	_, ok := stopWords[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

const (
	minNameLength = 2
	maxNameLength = 50
)

// Valid applies the span validity rules in order: bare stop word or stop
// prefix, length, control characters or repeated punctuation, purely numeric.
func Valid(name string) bool {
	if isStopWord(name) {
		return false
	}
	lower := strings.ToLower(name)
	for _, p := range stopPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}

	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return false
	}

	if strings.ContainsAny(name, "\n\r\t") || hasPunctuationRun(name) {
		return false
	}

	digits := strings.ReplaceAll(name, " ", "")
	if digits != "" && strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return false
	}
	return true
}

// hasPunctuationRun reports runs of two or more dots or quote characters.
func hasPunctuationRun(s string) bool {
	var prev rune
	for _, r := range s {
		if isRunChar(r) && isRunChar(prev) {
			return true
		}
		prev = r
	}
	return false
}

func isRunChar(r rune) bool {
	switch r {
	case '.', '…', '"', '\'', '«', '»', '“', '”', '‘', '’', '`':
		return true
	}
	return false
}
