// Package compaction provides context window management for
// conversation threads.
//
// When a thread's history grows past a token threshold, older messages
// are replaced by a single synthetic summary message while leading
// system messages and a recent window of messages survive verbatim.
// Compaction is best effort: a failed summarization call leaves the
// history untouched and the turn proceeds.
//
// # Partitioning
//
// Messages are split into three segments:
//
//   - Head: leading system messages (including previous compaction
//     summaries), preserved verbatim and never re-summarized.
//   - Older: the middle segment, summarized into one system message.
//   - Recent: the last RecentWindow messages, preserved verbatim in
//     original order.
//
// # Token Estimation
//
// Estimation is a deterministic character-derived approximation
// (~4 characters per token). Exactness is not required; only
// monotonic, locally-consistent comparison against the threshold.
package compaction
