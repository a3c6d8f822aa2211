package compaction

import (
	"context"

	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/types"
)

// Default configuration values.
const (
	// DefaultThreshold is the token estimate above which compaction
	// triggers.
	DefaultThreshold = 8000

	// DefaultRecentWindow is the number of trailing messages kept
	// verbatim through compaction.
	DefaultRecentWindow = 5
)

// Config controls the compactor.
type Config struct {
	// Threshold is the token estimate above which NeedsCompaction
	// reports true. Zero means DefaultThreshold.
	Threshold int

	// RecentWindow is the number of trailing messages preserved
	// verbatim. Zero means DefaultRecentWindow.
	RecentWindow int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	return c
}

// Result describes one compaction.
type Result struct {
	// Messages is the compacted list: head + summary (if any) +
	// recent window.
	Messages []types.Message

	// CompressionRatio is 1 - (post-estimate / pre-estimate). Zero
	// when nothing was removed.
	CompressionRatio float64

	// OriginalTokens and CompactedTokens are the estimates before
	// and after.
	OriginalTokens  int
	CompactedTokens int

	// MessagesRemoved counts the older messages replaced by the
	// summary.
	MessagesRemoved int
}

// Compactor decides when to compact and performs the rewrite.
type Compactor struct {
	summarizer *Summarizer
	config     Config
}

// New creates a Compactor using client for summarization.
func New(client llm.Client, config Config) *Compactor {
	return &Compactor{
		summarizer: NewSummarizer(client),
		config:     config.withDefaults(),
	}
}

// NeedsCompaction reports whether the message list exceeds the
// configured token threshold.
func (c *Compactor) NeedsCompaction(messages []types.Message) bool {
	return EstimateMessages(messages) > c.config.Threshold
}

// Compact rewrites the message list as [head] + [summary] + [recent].
// The input slice is not mutated. When the older segment is empty
// there is nothing to summarize and the original list is returned with
// a zero ratio.
//
// On summarization failure the error is returned and the caller keeps
// the original messages; compaction is an optimization, never a
// correctness dependency.
func (c *Compactor) Compact(ctx context.Context, messages []types.Message) (*Result, error) {
	pre := EstimateMessages(messages)
	partition := SplitMessages(messages, c.config.RecentWindow)

	if len(partition.Older) == 0 {
		return &Result{
			Messages:        types.CloneMessages(messages),
			OriginalTokens:  pre,
			CompactedTokens: pre,
		}, nil
	}

	summary, err := c.summarizer.Summarize(ctx, partition.Older)
	if err != nil {
		return nil, err
	}

	compacted := make([]types.Message, 0, len(partition.Head)+1+len(partition.Recent))
	compacted = append(compacted, partition.Head...)
	compacted = append(compacted, types.NewSummaryMessage(summary))
	compacted = append(compacted, partition.Recent...)

	post := EstimateMessages(compacted)
	ratio := 0.0
	if pre > 0 {
		ratio = 1 - float64(post)/float64(pre)
	}

	return &Result{
		Messages:         compacted,
		CompressionRatio: ratio,
		OriginalTokens:   pre,
		CompactedTokens:  post,
		MessagesRemoved:  len(partition.Older),
	}, nil
}
