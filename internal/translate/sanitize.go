package translate

import (
	"regexp"
	"strings"
)

var (
	disclaimerParen   = regexp.MustCompile(`(?i)\(\s*(note|nota)\s*:[^)]*\)`)
	disclaimerBracket = regexp.MustCompile(`(?i)\[\s*(note|nota)\s*:[^\]]*\]`)
	disclaimerLine    = regexp.MustCompile(`(?i)^\s*(note|nota)\s*:`)
)

// SanitizeAIText removes translator notes and disclaimers that models add
// around the actual translation.
func SanitizeAIText(s string) string {
	s = disclaimerParen.ReplaceAllString(s, " ")
	s = disclaimerBracket.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if disclaimerLine.MatchString(line) {
			continue
		}
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

// normalizeTitle drops trailing periods; titles never end in one.
func normalizeTitle(s string) string {
	s = strings.TrimSpace(SanitizeAIText(s))
	for strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "...") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "."))
	}
	return s
}

// normalizeContent makes sure non-empty content ends with terminal punctuation.
func normalizeContent(s string) string {
	s = strings.TrimSpace(SanitizeAIText(s))
	if s == "" {
		return s
	}
	switch {
	case strings.HasSuffix(s, "."), strings.HasSuffix(s, "!"), strings.HasSuffix(s, "?"),
		strings.HasSuffix(s, "…"), strings.HasSuffix(s, "»"), strings.HasSuffix(s, "\""):
		return s
	}
	return s + "."
}
