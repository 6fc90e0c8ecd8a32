package domain

import "strings"

// InterestTopic is one entry of the compass sent with every scoring call.
type InterestTopic struct {
	ID             int64  `json:"id"`
	Subject        string `json:"subject"`
	Scope          string `json:"scope"`
	Keywords       string `json:"keywords"`
	Exclusions     string `json:"exclusions"`
	RelevanceLevel int    `json:"relevance"`
}

// KeywordList splits the comma-separated keywords.
func (t InterestTopic) KeywordList() []string { return splitCSV(t.Keywords) }

// ExclusionList splits the comma-separated exclusion keywords.
func (t InterestTopic) ExclusionList() []string { return splitCSV(t.Exclusions) }

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
