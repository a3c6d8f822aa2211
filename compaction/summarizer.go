package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/types"
)

// summaryMaxTokens caps the length of a compaction summary.
const summaryMaxTokens = 1024

// Summarizer turns the older segment of a conversation into a single
// summary text via one completion call.
type Summarizer struct {
	client    llm.Client
	maxTokens int
}

// NewSummarizer creates a Summarizer backed by the given client.
func NewSummarizer(client llm.Client) *Summarizer {
	return &Summarizer{
		client:    client,
		maxTokens: summaryMaxTokens,
	}
}

// Summarize generates a summary of the given messages. The returned
// text is suitable as the content of a synthetic system message.
func (s *Summarizer) Summarize(ctx context.Context, older []types.Message) (string, error) {
	if len(older) == 0 {
		return "", ErrNoMessagesToCompact
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		System: SummarizationSystemPrompt,
		Messages: []types.Message{
			types.NewMessage(types.RoleUser, BuildSummarizationPrompt(older)),
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	summary := strings.TrimSpace(completion.Text)
	if summary == "" {
		return "", fmt.Errorf("%w: empty response from summarizer", ErrSummarizationFailed)
	}

	return summary, nil
}
