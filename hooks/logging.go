package hooks

import (
	"context"
	"encoding/json"

	"github.com/turnloop/turnloop/compaction"
	"github.com/turnloop/turnloop/router"
	"github.com/turnloop/turnloop/types"
	"github.com/turnloop/turnloop/verify"
)

// Logger is the logging interface the built-in hooks write to.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggingHooks logs the turn lifecycle. Register with RegisterOn.
type LoggingHooks struct {
	logger Logger
}

// NewLoggingHooks creates logging hooks writing to the given logger.
func NewLoggingHooks(logger Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// RegisterOn attaches all logging hooks to the registry.
func (h *LoggingHooks) RegisterOn(r *Registry) {
	r.OnBeforeTurn(h.BeforeTurn)
	r.OnAfterRouting(h.AfterRouting)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCall(h.ToolCall)
	r.OnAfterVerification(h.AfterVerification)
	r.OnAfterTurn(h.AfterTurn)
}

// BeforeTurn logs the start of a turn.
func (h *LoggingHooks) BeforeTurn(ctx context.Context, threadID, userMessage string) error {
	h.logger.Info("turn started", "thread_id", threadID, "message_len", len(userMessage))
	return nil
}

// AfterRouting logs the routing decision.
func (h *LoggingHooks) AfterRouting(ctx context.Context, threadID string, decision *router.Decision) error {
	h.logger.Info("turn routed",
		"thread_id", threadID,
		"action", decision.Action.String(),
		"confidence", decision.Confidence,
	)
	return nil
}

// AfterCompaction logs compaction results.
func (h *LoggingHooks) AfterCompaction(ctx context.Context, threadID string, result *compaction.Result) error {
	h.logger.Info("context compacted",
		"thread_id", threadID,
		"original_tokens", result.OriginalTokens,
		"compacted_tokens", result.CompactedTokens,
		"messages_removed", result.MessagesRemoved,
		"compression_ratio", result.CompressionRatio,
	)
	return nil
}

// ToolCall logs tool executions, truncating long output.
func (h *LoggingHooks) ToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
	if err != nil {
		h.logger.Warn("tool failed", "tool", toolName, "error", err)
		return nil
	}
	preview := output
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	h.logger.Debug("tool succeeded", "tool", toolName, "output", preview)
	return nil
}

// AfterVerification logs each verification attempt.
func (h *LoggingHooks) AfterVerification(ctx context.Context, threadID string, attempt int, report *verify.Report) error {
	h.logger.Info("draft verified",
		"thread_id", threadID,
		"attempt", attempt,
		"passed", report.Passed,
		"score", report.OverallScore,
	)
	return nil
}

// AfterTurn logs the final turn state.
func (h *LoggingHooks) AfterTurn(ctx context.Context, state *types.TurnState) error {
	h.logger.Info("turn finished",
		"thread_id", state.ThreadID,
		"messages", len(state.Messages),
		"refinement_attempts", state.RefinementAttempts,
		"verification_passed", state.Verified(),
	)
	return nil
}
