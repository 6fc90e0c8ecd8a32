// Package langdetect tags text with an ISO 639-1 language code.
package langdetect

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"github.com/deusflow/newsroom/internal/domain"
)

// SampleSize is how many runes of text are sampled for detection.
const SampleSize = 500

// minLetters below which detection is not attempted.
const minLetters = 3

// Classifier detects the language of short news texts.
type Classifier struct {
	options whatlanggo.Options
}

// New creates a classifier considering every language whatlanggo knows.
func New() *Classifier {
	return &Classifier{}
}

// Sample joins a title with a short prefix of the content.
func Sample(title, content string) string {
	text := strings.TrimSpace(title + " " + content)
	if r := []rune(text); len(r) > SampleSize {
		text = string(r[:SampleSize])
	}
	return text
}

// Detect returns the ISO 639-1 code for text, or "unknown" when the text is
// too short or the detector cannot decide. It never panics.
func (c *Classifier) Detect(text string) (code string) {
	code = domain.LanguageUnknown
	if countLetters(text) < minLetters {
		return code
	}

	defer func() {
		if recover() != nil {
			code = domain.LanguageUnknown
		}
	}()

	info := whatlanggo.DetectWithOptions(text, c.options)
	if info.Lang < 0 {
		return code
	}
	if iso := info.Lang.Iso6391(); iso != "" {
		return iso
	}
	return code
}

// DetectItem detects from a title and content pair.
func (c *Classifier) DetectItem(title, content string) string {
	return c.Detect(Sample(title, content))
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
			if n >= minLetters {
				return n
			}
		}
	}
	return n
}
