package compaction

import "github.com/turnloop/turnloop/types"

// Partition is the three-way split of a message list used by
// compaction.
type Partition struct {
	// Head holds the leading system messages, preserved verbatim.
	// Previous compaction summaries live here and are never
	// summarized twice.
	Head []types.Message

	// Older is the middle segment eligible for summarization.
	Older []types.Message

	// Recent is the last RecentWindow messages, preserved verbatim.
	Recent []types.Message
}

// SplitMessages partitions messages into head, older, and recent
// segments. recentWindow is the number of trailing messages preserved
// verbatim; a non-positive window preserves nothing beyond the head.
func SplitMessages(messages []types.Message, recentWindow int) Partition {
	var p Partition

	// Leading system messages form the head.
	i := 0
	for i < len(messages) && messages[i].Role == types.RoleSystem {
		i++
	}
	p.Head = messages[:i]

	rest := messages[i:]
	if recentWindow < 0 {
		recentWindow = 0
	}
	if len(rest) <= recentWindow {
		p.Recent = rest
		return p
	}

	split := len(rest) - recentWindow
	p.Older = rest[:split]
	p.Recent = rest[split:]
	return p
}
