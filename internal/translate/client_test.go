package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/newsroom/internal/retry"
)

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 17, "total_tokens": 59},
	})
	return string(body)
}

func TestOpenAIClientSendsKeyedPayload(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse("```json\n{\"7\": {\"title_es\": \"Hola\", \"content_es\": \"Mundo.\"}}\n```"))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL+"/v1", "", 0)
	resp, err := c.TranslateBatch(context.Background(), map[string]SourceText{"7": {Title: "Hello", Content: "World"}})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	if got.Model != DefaultModel || got.ResponseFormat.Type != "json_object" {
		t.Errorf("unexpected request model=%q format=%q", got.Model, got.ResponseFormat.Type)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != `{"7":{"title":"Hello","content":"World"}}` {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if resp.Items["7"].TitleES != "Hola" || resp.PromptTokens != 42 || resp.CompletionTokens != 17 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAIClientMarksClientErrorsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "bad model", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", srv.URL, "missing-model", 0)
	_, err := c.TranslateBatch(context.Background(), map[string]SourceText{"1": {Title: "x"}})
	if err == nil || !retry.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestParseBatchRejectsMalformedJSON(t *testing.T) {
	if _, err := parseBatch("not json at all"); err == nil {
		t.Error("expected decode error")
	}
}
