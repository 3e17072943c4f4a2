package usage

import "time"

// Record represents a single metered LLM call
type Record struct {
	Timestamp time.Time `ch:"timestamp" json:"timestamp"`
	EventID   string    `ch:"event_id" json:"event_id"`

	// Vendor details
	Provider string `ch:"provider" json:"provider"` // openai, anthropic, google, deepseek
	Model    string `ch:"model" json:"model"`       // gpt-4o, claude-sonnet-4, etc.
	Service  string `ch:"service" json:"service"`   // logical service that made the call

	// Token usage
	InputTokens  uint32 `ch:"input_tokens" json:"input_tokens"`
	OutputTokens uint32 `ch:"output_tokens" json:"output_tokens"`

	// Cost in USD
	Cost float64 `ch:"cost" json:"cost"`

	// Performance
	LatencyMs    uint32  `ch:"latency_ms" json:"latency_ms"`
	QualityScore float64 `ch:"quality_score" json:"quality_score"`

	CreatedAt time.Time `ch:"created_at" json:"created_at"`
}

// TotalTokens returns the combined token count for the call
func (r *Record) TotalTokens() uint32 {
	return r.InputTokens + r.OutputTokens
}
