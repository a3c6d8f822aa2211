package compaction

import "errors"

// Sentinel errors for compaction operations.
var (
	// ErrNoMessagesToCompact indicates there are no messages eligible
	// for summarization.
	ErrNoMessagesToCompact = errors.New("no messages to compact")

	// ErrSummarizationFailed indicates the summarization call failed.
	ErrSummarizationFailed = errors.New("summarization failed")
)
