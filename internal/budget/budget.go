// Package budget estimates token counts and trims conversation history so a
// prompt fits the model's context window. The assistant runs against several
// interchangeable LLM backends with different tokenizers, so estimation uses
// a character heuristic: 1 token ≈ 4 characters, which holds roughly for
// Spanish prose as well as English. The heuristic under-counts on purpose to
// leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead approximates the per-message framing tokens chat APIs
	// charge on top of role and content.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget. Small enough for
	// 8k-context models while leaving room for the generated answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
// Non-empty strings count as at least one token.
func Estimate(s string) int {
	if s == "" {
		return 0
	}
	return max(1, len(s)/charsPerToken)
}

// EstimateMessages returns the estimated token total for msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits
// within maxTokens. fixed holds the untrimmable messages (system prompt,
// knowledge context, current user message); history holds prior turns.
// If even an empty history exceeds the budget the empty slice is returned;
// fixed messages are never dropped here.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	// History is at most a handful of turns; a linear scan dropping from the
	// front is clear and correct.
	budget := maxTokens - EstimateMessages(fixed)
	for len(history) > 0 && EstimateMessages(history) > budget {
		history = history[1:]
	}
	return history
}
