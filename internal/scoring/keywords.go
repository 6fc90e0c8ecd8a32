package scoring

import (
	"strings"
	"unicode"

	"github.com/deusflow/newsroom/internal/domain"
)

// containsAny reports whether text contains one of keywords. Phrases and
// long words match as substrings; words of three letters or fewer must match
// a whole token.
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	var tokens map[string]bool

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		if strings.Contains(k, " ") {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		if len([]rune(k)) <= 3 {
			if tokens == nil {
				tokens = tokenSet(text)
			}
			if tokens[k] {
				return true
			}
			continue
		}

		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = true
	}
	return set
}

// itemText is everything the exclusion check looks at.
func itemText(n domain.NewsItem) string {
	parts := []string{n.Title, n.ContentSnippet}
	if n.TitleES != nil {
		parts = append(parts, *n.TitleES)
	}
	if n.ContentES != nil {
		parts = append(parts, *n.ContentES)
	}
	return strings.Join(parts, " ")
}

// Excluded reports whether the item matches a topic and one of that topic's
// exclusion keywords. A topic without keywords matches every item.
func Excluded(n domain.NewsItem, topics []domain.InterestTopic) (bool, string) {
	text := itemText(n)
	for _, t := range topics {
		exclusions := t.ExclusionList()
		if len(exclusions) == 0 {
			continue
		}
		keywords := t.KeywordList()
		if len(keywords) > 0 && !containsAny(text, keywords) {
			continue
		}
		if containsAny(text, exclusions) {
			return true, t.Subject
		}
	}
	return false, ""
}
