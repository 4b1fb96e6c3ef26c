package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey: "test-key",
		})

		if client.model != "gpt-4o-mini" {
			t.Errorf("model = %q, want %q", client.model, "gpt-4o-mini")
		}
		if client.baseURL != defaultBaseURL {
			t.Errorf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
		}
		if client.maxTokens != 300 {
			t.Errorf("maxTokens = %d, want 300", client.maxTokens)
		}
		if client.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", client.apiKey, "test-key")
		}
	})

	t.Run("custom model and base URL", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey:  "test-key",
			Model:   "gpt-4o",
			BaseURL: "https://openrouter.ai/api/v1/",
		})

		if client.model != "gpt-4o" {
			t.Errorf("model = %q, want %q", client.model, "gpt-4o")
		}
		if client.baseURL != "https://openrouter.ai/api/v1" {
			t.Errorf("baseURL = %q, trailing slash should be trimmed", client.baseURL)
		}
	})
}

func newTestServer(t *testing.T, content string, usage Usage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": usage,
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestReply(t *testing.T) {
	srv := newTestServer(t, "  Gerne! Was darf es sein?  ", Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60})
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	reply, usage, err := client.Reply(context.Background(), "Du bist Lena.", []Message{
		{Role: "user", Content: "Hallo"},
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply != "Gerne! Was darf es sein?" {
		t.Errorf("reply = %q, whitespace should be trimmed", reply)
	}
	if usage.TotalTokens != 60 {
		t.Errorf("usage.TotalTokens = %d, want 60", usage.TotalTokens)
	}
}

func TestReplyAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, _, err := client.Reply(context.Background(), "", []Message{{Role: "user", Content: "Hallo"}})
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should mention status, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	srv := newTestServer(t, "```json\n{\"treatment_category\": \"Gesicht\", \"max_price\": 100}\n```", Usage{TotalTokens: 120})
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	extracted, usage, err := client.ExtractFilters(context.Background(), "Gesichtsbehandlung bis 100 Euro", nil)
	if err != nil {
		t.Fatalf("ExtractFilters() error = %v", err)
	}
	if extracted["treatment_category"] != "Gesicht" {
		t.Errorf("treatment_category = %v", extracted["treatment_category"])
	}
	if extracted["max_price"] != float64(100) {
		t.Errorf("max_price = %v", extracted["max_price"])
	}
	if usage.TotalTokens != 120 {
		t.Errorf("usage.TotalTokens = %d, want 120", usage.TotalTokens)
	}
}

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
		wantErr bool
	}{
		{"bare json", `{"method": "Apparativ"}`, "method", false},
		{"fenced json", "```json\n{\"method\": \"Apparativ\"}\n```", "method", false},
		{"fenced without language", "```\n{\"method\": \"Apparativ\"}\n```", "method", false},
		{"empty object", `{}`, "", false},
		{"not json", "Leider kann ich das nicht.", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExtraction(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtraction() error = %v", err)
			}
			if tt.wantKey != "" {
				if _, ok := got[tt.wantKey]; !ok {
					t.Errorf("missing key %q in %v", tt.wantKey, got)
				}
			}
		})
	}
}

func TestBuildExtractionPrompt(t *testing.T) {
	prompt, err := BuildExtractionPrompt("Ich suche eine Massage", map[string]any{"treatment_category": "Wellness"})
	if err != nil {
		t.Fatalf("BuildExtractionPrompt() error = %v", err)
	}
	if !strings.Contains(prompt, `Current message: "Ich suche eine Massage"`) {
		t.Error("prompt should embed the message")
	}
	if !strings.Contains(prompt, `"treatment_category":"Wellness"`) {
		t.Error("prompt should embed current preferences as JSON")
	}
	if strings.Contains(prompt, "{current_message}") || strings.Contains(prompt, "{current_preferences}") {
		t.Error("placeholders should be substituted")
	}
}

func TestClientInterface(t *testing.T) {
	var _ Client = (*OpenAIClient)(nil)
}
