package compaction

import "github.com/turnloop/turnloop/types"

// messageOverheadTokens approximates the per-message framing cost.
const messageOverheadTokens = 4

// EstimateTokens provides fast deterministic estimation without an API
// call. Roughly 4 characters per token for English text, rounded up so
// any non-empty string costs at least one token.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// EstimateMessages estimates the token cost of a message list,
// including per-message overhead.
func EstimateMessages(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content) + messageOverheadTokens
	}
	return total
}
