package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/newsroom/internal/retry"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is the Groq model used for translation.
const DefaultModel = "llama-3.1-8b-instant"

// SourceText is one item of a translation request.
type SourceText struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Translation is one item of a translation response.
type Translation struct {
	TitleES   string `json:"title_es"`
	ContentES string `json:"content_es"`
}

// BatchResponse carries the translations keyed by request id plus usage.
type BatchResponse struct {
	Items            map[string]Translation
	PromptTokens     int
	CompletionTokens int
}

// Client translates a keyed batch into Spanish.
type Client interface {
	TranslateBatch(ctx context.Context, batch map[string]SourceText) (BatchResponse, error)
}

const systemPrompt = `You are a professional news translator. You receive a JSON object that maps ids to {"title", "content"}.
Translate every title and content into neutral, journalistic Spanish.
Return ONLY a JSON object with exactly the same ids as keys, where each value is {"title_es": "...", "content_es": "..."}.
Rules:
- The title never ends with a period.
- The content always ends with a period.
- Keep names of people, brands and organisations as they are.
- No comments, notes or disclaimers outside the JSON.`

// OpenAIClient talks to any OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient creates a client. An empty baseURL targets Groq.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model, maxTokens: 4096}
}

func (c *OpenAIClient) TranslateBatch(ctx context.Context, batch map[string]SourceText) (BatchResponse, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return BatchResponse{}, retry.Permanent(fmt.Errorf("encode batch: %w", err))
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.3,
		MaxTokens:      c.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return BatchResponse{}, retry.Permanent(err)
		}
		return BatchResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return BatchResponse{}, errors.New("no choices in translation response")
	}

	items, err := parseBatch(resp.Choices[0].Message.Content)
	if err != nil {
		return BatchResponse{}, err
	}
	return BatchResponse{
		Items:            items,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func parseBatch(content string) (map[string]Translation, error) {
	raw := extractJSON(content)
	var items map[string]Translation
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	return items, nil
}

// extractJSON strips code fences and any text around the outermost object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
