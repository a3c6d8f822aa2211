// Package hooks provides lifecycle callbacks for observing turn
// processing.
//
// Hooks run synchronously in registration order. A hook error aborts
// the turn, so hooks that only observe should swallow their own
// failures.
package hooks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turnloop/turnloop/compaction"
	"github.com/turnloop/turnloop/router"
	"github.com/turnloop/turnloop/types"
	"github.com/turnloop/turnloop/verify"
)

// BeforeTurnHook runs when a turn starts, before the checkpoint is
// loaded.
type BeforeTurnHook func(ctx context.Context, threadID, userMessage string) error

// AfterRoutingHook runs once the routing decision is made.
type AfterRoutingHook func(ctx context.Context, threadID string, decision *router.Decision) error

// AfterCompactionHook runs after a successful compaction.
type AfterCompactionHook func(ctx context.Context, threadID string, result *compaction.Result) error

// ToolCallHook runs after each tool execution during generation.
type ToolCallHook func(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error

// AfterVerificationHook runs after each verification attempt,
// including failing ones.
type AfterVerificationHook func(ctx context.Context, threadID string, attempt int, report *verify.Report) error

// AfterTurnHook runs once the turn has a final state, before it is
// returned to the caller.
type AfterTurnHook func(ctx context.Context, state *types.TurnState) error

// Registry holds registered hooks.
type Registry struct {
	mu                sync.RWMutex
	beforeTurn        []BeforeTurnHook
	afterRouting      []AfterRoutingHook
	afterCompaction   []AfterCompactionHook
	toolCall          []ToolCallHook
	afterVerification []AfterVerificationHook
	afterTurn         []AfterTurnHook
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeTurn registers a before-turn hook.
func (r *Registry) OnBeforeTurn(hook BeforeTurnHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeTurn = append(r.beforeTurn, hook)
}

// OnAfterRouting registers an after-routing hook.
func (r *Registry) OnAfterRouting(hook AfterRoutingHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterRouting = append(r.afterRouting, hook)
}

// OnAfterCompaction registers an after-compaction hook.
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// OnToolCall registers a tool-call hook.
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// OnAfterVerification registers an after-verification hook.
func (r *Registry) OnAfterVerification(hook AfterVerificationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterVerification = append(r.afterVerification, hook)
}

// OnAfterTurn registers an after-turn hook.
func (r *Registry) OnAfterTurn(hook AfterTurnHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterTurn = append(r.afterTurn, hook)
}

// TriggerBeforeTurn calls the registered before-turn hooks.
func (r *Registry) TriggerBeforeTurn(ctx context.Context, threadID, userMessage string) error {
	for _, hook := range snapshot(&r.mu, r.beforeTurn) {
		if err := hook(ctx, threadID, userMessage); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterRouting calls the registered after-routing hooks.
func (r *Registry) TriggerAfterRouting(ctx context.Context, threadID string, decision *router.Decision) error {
	for _, hook := range snapshot(&r.mu, r.afterRouting) {
		if err := hook(ctx, threadID, decision); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompaction calls the registered after-compaction hooks.
func (r *Registry) TriggerAfterCompaction(ctx context.Context, threadID string, result *compaction.Result) error {
	for _, hook := range snapshot(&r.mu, r.afterCompaction) {
		if err := hook(ctx, threadID, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCall calls the registered tool-call hooks.
func (r *Registry) TriggerToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, toolErr error) error {
	for _, hook := range snapshot(&r.mu, r.toolCall) {
		if err := hook(ctx, toolName, input, output, toolErr); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterVerification calls the registered after-verification hooks.
func (r *Registry) TriggerAfterVerification(ctx context.Context, threadID string, attempt int, report *verify.Report) error {
	for _, hook := range snapshot(&r.mu, r.afterVerification) {
		if err := hook(ctx, threadID, attempt, report); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterTurn calls the registered after-turn hooks.
func (r *Registry) TriggerAfterTurn(ctx context.Context, state *types.TurnState) error {
	for _, hook := range snapshot(&r.mu, r.afterTurn) {
		if err := hook(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func snapshot[T any](mu *sync.RWMutex, hooks []T) []T {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]T, len(hooks))
	copy(out, hooks)
	return out
}
