package compaction

import (
	"fmt"
	"strings"

	"github.com/turnloop/turnloop/types"
)

// SummarizationSystemPrompt instructs the model to produce a compact,
// durable summary that can replace the older segment of a conversation
// without losing information the assistant needs later.
const SummarizationSystemPrompt = `You are a conversation summarizer for an assistant runtime. Older messages of a conversation are about to be replaced by your summary while the most recent messages are kept verbatim.

Write a structured summary with these sections (write "None" for empty sections):

1. **Request and Intent** - what the user is trying to accomplish, including stated constraints.
2. **Established Facts and Decisions** - durable facts, agreements, and decisions made so far.
3. **Open Items** - questions raised but unanswered, tasks promised but not done.
4. **Current State** - where the conversation stands and what the assistant was doing last.

Guidelines:
- Be concise but complete; preserve everything needed to continue the conversation.
- Keep specific details: names, numbers, identifiers, exact user wording for important intent.
- Maintain chronological order within sections.
- Never invent information that is not in the conversation.`

// BuildSummarizationPrompt formats the older segment as the user
// message for a summarization call.
func BuildSummarizationPrompt(older []types.Message) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation segment according to your instructions.\n\n<conversation>\n")
	for _, msg := range older {
		fmt.Fprintf(&b, "[%s]: %s\n", msg.Role, msg.Content)
	}
	b.WriteString("</conversation>")
	return b.String()
}
