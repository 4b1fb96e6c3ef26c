// Package costs provides cost calculation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on 2026 market rates and can be overridden via environment variables.
var (
	// OpenAICentsPerThousandInputTokens is the cost per 1K input tokens for GPT-4o-mini.
	// Default: $0.15/1M = $0.00015/1K = 0.015 cents/1K tokens
	OpenAICentsPerThousandInputTokens = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015)

	// OpenAICentsPerThousandOutputTokens is the cost per 1K output tokens for GPT-4o-mini.
	// Default: $0.60/1M = $0.0006/1K = 0.06 cents/1K tokens
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06)

	// ExtractionCentsPerCall is a flat surcharge per filter-extraction call,
	// covering providers that bill per request on top of tokens.
	// Default: 0 (token-only billing)
	ExtractionCentsPerCall = getEnvFloat("COST_EXTRACTION_CENTS_PER_CALL", 0)
)

// SessionMetrics contains the raw usage metrics from a chat session.
type SessionMetrics struct {
	LLMInputTokens  int // Tokens sent to the LLM across all calls
	LLMOutputTokens int // Tokens received from the LLM
	ExtractionCalls int // Number of filter-extraction requests
}

// SessionCosts contains the calculated costs for a session in cents.
type SessionCosts struct {
	LLMCostCents        int
	ExtractionCostCents int
	TotalCostCents      int
}

// CalculateSessionCosts computes the costs for a session based on usage metrics.
func CalculateSessionCosts(m SessionMetrics) SessionCosts {
	// LLM costs: per 1K tokens
	llmInputCents := (float64(m.LLMInputTokens) / 1000.0) * OpenAICentsPerThousandInputTokens
	llmOutputCents := (float64(m.LLMOutputTokens) / 1000.0) * OpenAICentsPerThousandOutputTokens
	llmCents := llmInputCents + llmOutputCents

	extractionCents := float64(m.ExtractionCalls) * ExtractionCentsPerCall

	// Round to nearest cent (we store as integers)
	costs := SessionCosts{
		LLMCostCents:        roundToInt(llmCents),
		ExtractionCostCents: roundToInt(extractionCents),
	}
	costs.TotalCostCents = costs.LLMCostCents + costs.ExtractionCostCents

	return costs
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
