package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Usage reports token consumption for a single API call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another call's usage.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Client defines the interface for LLM providers.
type Client interface {
	// Reply generates the assistant's next turn. The system prompt is assembled
	// fresh each turn (persona plus steering instructions), so it is passed
	// explicitly instead of living on the client.
	Reply(ctx context.Context, system string, messages []Message) (string, Usage, error)

	// ExtractFilters pulls structured preference changes out of a customer
	// message. Returns only the changes, not the full preference state.
	ExtractFilters(ctx context.Context, message string, current map[string]any) (map[string]any, Usage, error)
}
