// Package domain holds the newsroom entities shared by every pipeline stage.
package domain

import "time"

// Status is the editorial state of a NewsItem.
type Status string

const (
	StatusDiscovered Status = "DISCOVERED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDiscovered, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// LanguageUnknown marks an item whose language could not be detected.
const LanguageUnknown = "unknown"

// LanguageSpanish is the target rendering language of the newsroom.
const LanguageSpanish = "es"

// NewsItem is a discovered article. Each stage owns a disjoint set of fields:
// Translator writes Language/TitleES/ContentES, EntityExtractor writes
// EntitiesExtracted, RelevanceScorer writes the AI* fields.
type NewsItem struct {
	ID             int64
	SourceID       int64
	URL            string
	Title          string
	ContentSnippet string
	PublishedAt    time.Time
	Language       string
	Status         Status

	TitleES   *string
	ContentES *string

	EntitiesExtracted bool

	AIScore       *int
	AICategory    *string
	AIExplanation *string

	CreatedAt time.Time
}

// Translated reports whether the Spanish rendering sentinel is set.
func (n NewsItem) Translated() bool { return n.TitleES != nil }

// Scored reports whether the relevance sentinel is set.
func (n NewsItem) Scored() bool { return n.AIScore != nil }

// AnalysisText is the text used for entity extraction: the Spanish rendering
// when present, otherwise the original title and snippet.
func (n NewsItem) AnalysisText() string {
	if n.TitleES != nil {
		content := ""
		if n.ContentES != nil {
			content = *n.ContentES
		}
		return joinText(*n.TitleES, content)
	}
	return joinText(n.Title, n.ContentSnippet)
}

func joinText(title, content string) string {
	switch {
	case content == "":
		return title
	case title == "":
		return content
	}
	return title + ". " + content
}

// NewNewsItem is the insert shape produced by the FeedReader.
type NewNewsItem struct {
	SourceID       int64
	URL            string
	Title          string
	ContentSnippet string
	PublishedAt    time.Time
	Language       string
}
