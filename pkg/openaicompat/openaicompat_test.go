package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{APIKey: " ", Model: "m"}); err == nil {
		t.Fatal("empty api key accepted")
	}
	if _, err := NewClient(Config{APIKey: "k", Model: "  "}); err == nil {
		t.Fatal("empty model accepted")
	}
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": "  sunny all week  ",
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxTokens:   128,
		Temperature: 0.5,
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := client.Generate(context.Background(), contractx.GenerateRequest{
		System: "be brief",
		Prompt: "weather?",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "sunny all week" {
		t.Fatalf("Generate = %q", got)
	}

	if captured["model"] != "test-model" {
		t.Fatalf("request model = %v", captured["model"])
	}
	msgs, ok := captured["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v", captured["messages"])
	}
}

func TestGenerateEmptyChoicesIsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"choices": []any{},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Generate(context.Background(), contractx.GenerateRequest{Prompt: "x"})
	if kind := contractx.FailureKind(err); kind != contractx.FailMalformed {
		t.Fatalf("kind = %s, want malformed", kind)
	}
}
