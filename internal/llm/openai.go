package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements the Client interface against an OpenAI-compatible
// chat completions endpoint (OpenAI itself or OpenRouter).
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey    string
	Model     string // e.g., "gpt-4o-mini"
	BaseURL   string // Optional; defaults to the OpenAI API
	MaxTokens int    // Optional cap on reply length
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// chatRequest represents an OpenAI chat completion request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents an OpenAI chat completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Reply generates the assistant's next turn.
func (c *OpenAIClient) Reply(ctx context.Context, system string, messages []Message) (string, Usage, error) {
	chatMsgs := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		chatMsgs = append(chatMsgs, chatMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		chatMsgs = append(chatMsgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	req := chatRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: 0.5,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.complete(ctx, req)
	if err != nil {
		return "", Usage{}, err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), resp.Usage, nil
}

// ExtractFilters pulls structured preference changes out of a customer message.
// The model is asked for bare JSON; markdown code fences are tolerated. Retries
// up to three times with linear backoff before giving up.
func (c *OpenAIClient) ExtractFilters(ctx context.Context, message string, current map[string]any) (map[string]any, Usage, error) {
	prompt, err := BuildExtractionPrompt(message, current)
	if err != nil {
		return nil, Usage{}, err
	}

	req := chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 400,
	}

	var usage Usage
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, usage, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, err := c.complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		usage.Add(resp.Usage)

		extracted, err := parseExtraction(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			continue
		}
		return extracted, usage, nil
	}
	return nil, usage, fmt.Errorf("filter extraction failed: %w", lastErr)
}

func (c *OpenAIClient) complete(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat API error: %s - %s", resp.Status, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &chatResp, nil
}

// parseExtraction parses the model's JSON output, stripping markdown code
// fences when present.
func parseExtraction(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if strings.HasPrefix(lines[0], "```") {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
			lines = lines[:len(lines)-1]
		}
		content = strings.Join(lines, "\n")
	}

	var extracted map[string]any
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		return nil, fmt.Errorf("failed to parse extraction result: %w (content: %s)", err, content)
	}
	return extracted, nil
}
