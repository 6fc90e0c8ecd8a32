package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/newsroom/internal/domain"
)

// Categories, by score bucket.
const (
	CategoryIrrelevant = "Irrelevante"
	CategoryGeneral    = "Interés General"
	CategoryPriority   = "Alta Prioridad"
)

// Bucket maps a 0-100 score to its category.
func Bucket(score int) string {
	switch {
	case score >= 70:
		return CategoryPriority
	case score >= 30:
		return CategoryGeneral
	}
	return CategoryIrrelevant
}

// Clamp bounds a score to [0,100].
func Clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

type promptItem struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	PublishedDate string `json:"published_date"`
}

const promptTemplate = `You are an AI News Analyst for a strategic news agency. Your task is to analyze the following news items against a set of strategic interest topics.

**Strategic Topics (The Compass):**
%s

**News Items to Analyze:**
%s

**Analysis Protocol (5-Vector Matrix):**
For EACH news item, calculate a score (0-100) based on these 5 vectors:
1. **Thematic Alignment (0-20pts):** How well does it match a Topic's scope and keywords?
2. **Relevance/Impact (0-20pts):** From curiosity (0) to strategic change (20).
3. **Consequences (0-20pts):** From none (0) to paradigm shift (20).
4. **Normality (0-20pts):** From routine (5) to unprecedented (20).
5. **Facticity (0-20pts):** From rumor (0) to confirmed fact (20).

**CRITICAL RULES:**
1. **Exclusions:** If a news item contains any "exclusions" keyword defined in a matching Topic, the Total Score MUST be 0.
2. **Output Format:** You must return a STRICT JSON list of objects. Do not include markdown formatting (like ` + "```json" + `).
3. **Explanation:** Provide a concise explanation (max 2 sentences) justifying the score, mentioning the matching topic if any.
4. **Category:** Assign a category: "Irrelevante" (0-29), "Interés General" (30-69), "Alta Prioridad" (70-100).

**Expected JSON Output Structure:**
[
    {
        "news_id": 123,
        "ai_score": 85,
        "ai_category": "Alta Prioridad",
        "ai_explanation": "Matches topic 'Elections' with high impact due to..."
    }
]
`

// BuildPrompt serializes the compass and the batch into the scoring prompt.
func BuildPrompt(topics []domain.InterestTopic, items []domain.NewsItem) (string, error) {
	topicsJSON, err := json.MarshalIndent(topics, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode topics: %w", err)
	}

	batch := make([]promptItem, 0, len(items))
	for _, n := range items {
		batch = append(batch, promptItem{
			ID:            n.ID,
			Title:         n.Title,
			URL:           n.URL,
			PublishedDate: n.PublishedAt.UTC().Format(time.RFC3339),
		})
	}
	itemsJSON, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}

	return fmt.Sprintf(promptTemplate, topicsJSON, itemsJSON), nil
}

// Result is one element of the scoring response.
type Result struct {
	NewsID      int64  `json:"news_id"`
	Score       int    `json:"ai_score"`
	Category    string `json:"ai_category"`
	Explanation string `json:"ai_explanation"`
}

// ParseResults decodes a scoring response, unwrapping code fences first.
func ParseResults(text string) ([]Result, error) {
	text = stripCodeFences(text)

	var raw []struct {
		NewsID      json.Number `json:"news_id"`
		Score       json.Number `json:"ai_score"`
		Category    string      `json:"ai_category"`
		Explanation string      `json:"ai_explanation"`
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode scoring response: %w", err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		id, err := r.NewsID.Int64()
		if err != nil {
			continue
		}
		score, err := r.Score.Float64()
		if err != nil {
			continue
		}
		results = append(results, Result{
			NewsID:      id,
			Score:       int(score + 0.5),
			Category:    r.Category,
			Explanation: strings.TrimSpace(r.Explanation),
		})
	}
	return results, nil
}

// stripCodeFences returns the body of the first fenced block, or text as is.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
	} else {
		return text
	}
	if j := strings.Index(text, "```"); j >= 0 {
		text = text[:j]
	}
	return strings.TrimSpace(text)
}
