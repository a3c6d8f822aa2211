package turnloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/turnloop/turnloop/breaker"
	"github.com/turnloop/turnloop/checkpoint"
	"github.com/turnloop/turnloop/compaction"
	"github.com/turnloop/turnloop/generate"
	"github.com/turnloop/turnloop/hooks"
	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/render"
	"github.com/turnloop/turnloop/router"
	"github.com/turnloop/turnloop/runstate"
	"github.com/turnloop/turnloop/tool"
	"github.com/turnloop/turnloop/types"
	"github.com/turnloop/turnloop/verify"
)

// Result is the outcome of one processed turn.
type Result struct {
	ThreadID string

	// ResponseText is the final assistant response. Populated even
	// when verification exhausted its budget.
	ResponseText string

	// ResponseHTML is the sanitized HTML rendering of ResponseText.
	// Empty unless WithHTMLResponses is set.
	ResponseHTML string

	// Action is the routing decision the turn took.
	Action router.Action

	// RoutingConfidence is the classifier's confidence for Action.
	RoutingConfidence float64

	// VerificationPassed is false both when verification is disabled
	// and when the refinement budget ran out; check
	// VerificationSkipped to tell them apart.
	VerificationPassed   bool
	VerificationSkipped  bool
	VerificationScore    float64
	VerificationFeedback string

	// RefinementAttempts counts completed refinement cycles.
	RefinementAttempts int

	// CompactionApplied reports whether history was compacted this
	// turn.
	CompactionApplied bool

	// ToolsUsed lists tools executed for the final draft.
	ToolsUsed []string
}

// Orchestrator runs the turn pipeline: load checkpoint, compact,
// route, generate, verify and refine, persist.
type Orchestrator struct {
	config *internalConfig

	checkpoints checkpoint.Store
	compactor   *compaction.Compactor
	router      *router.Router
	generator   *generate.Generator
	verifier    *verify.Verifier
	renderer    *render.Renderer
	hooks       *hooks.Registry
	logger      Logger

	threads *threadLocks

	now func() time.Time
}

// New creates an Orchestrator. Configuration errors are fatal here,
// never deferred to ProcessTurn.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	if err := registry.RegisterAll(c.tools...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	retrying := llm.NewRetryClient(c.client, c.retry)
	if c.breakers != nil {
		retrying.SetBreaker(c.breakers.Get("llm", breaker.DefaultConfig()))
	}
	c.client = retrying

	o := &Orchestrator{
		config:      c,
		checkpoints: c.checkpoints,
		router:      router.New(c.client),
		generator: generate.New(c.client, registry, generate.Config{
			SystemPrompt: c.systemPrompt,
			ToolTimeout:  c.toolTimeout,
			Temperature:  c.temperature,
			OnToolCall:   c.hooks.TriggerToolCall,
		}),
		hooks:   c.hooks,
		logger:  c.logger,
		threads: newThreadLocks(),
		now:     time.Now,
	}

	if c.compactionEnabled {
		o.compactor = compaction.New(c.client, compaction.Config{
			Threshold:    c.compactionThreshold,
			RecentWindow: c.recentWindow,
		})
	}
	if c.verificationEnabled {
		o.verifier = verify.New(c.client, verify.Config{
			Threshold: c.qualityThreshold,
			Weights:   c.verifyWeights,
		})
	}
	if c.htmlResponses {
		o.renderer = render.New()
	}

	return o, nil
}

// ProcessTurn runs one conversational turn for the thread. Turns on
// the same thread are serialized: they queue behind each other, or are
// rejected with ErrThreadBusy when WithRejectConcurrentTurns is set.
// Turns on distinct threads proceed concurrently.
//
// The checkpoint is written once, after the turn reaches a final
// state. A failed or cancelled turn leaves the previous checkpoint
// untouched.
func (o *Orchestrator) ProcessTurn(ctx context.Context, threadID, userMessage string) (*Result, error) {
	if threadID == "" {
		return nil, newTurnError("process_turn", threadID, fmt.Errorf("%w: thread id is empty", ErrInvalidConfig))
	}
	if userMessage == "" {
		return nil, newTurnError("process_turn", threadID, fmt.Errorf("%w: user message is empty", ErrInvalidConfig))
	}

	if o.config.rejectConcurrentTurns {
		lock, ok := o.threads.tryAcquire(threadID)
		if !ok {
			return nil, newTurnError("process_turn", threadID, ErrThreadBusy)
		}
		defer lock.Unlock()
	} else {
		lock := o.threads.acquire(threadID)
		defer lock.Unlock()
	}

	return o.processLocked(ctx, threadID, userMessage)
}

func (o *Orchestrator) processLocked(ctx context.Context, threadID, userMessage string) (*Result, error) {
	if err := o.hooks.TriggerBeforeTurn(ctx, threadID, userMessage); err != nil {
		return nil, newTurnError("before_turn", threadID, err)
	}

	state, err := o.loadState(ctx, threadID)
	if err != nil {
		return nil, err
	}

	// Reset per-turn fields before the new turn starts.
	state.UserRequest = userMessage
	state.NextAction = ""
	state.RoutingConfidence = 0
	state.Reasoning = ""
	state.CompactionApplied = false
	state.OriginalMessageCount = 0
	state.RefinementAttempts = 0
	state.ClearVerification()
	state.AppendMessage(types.NewMessage(types.RoleUser, userMessage))

	o.maybeCompact(ctx, state)

	decision, err := o.route(ctx, state)
	if err != nil {
		return nil, err
	}

	draft, report, err := o.generateAndVerify(ctx, state, decision)
	if err != nil {
		return nil, err
	}

	state.AppendMessage(types.NewMessage(types.RoleAssistant, draft.Text))
	state.UpdatedAt = o.now()

	if err := o.saveState(ctx, state); err != nil {
		return nil, err
	}

	if err := o.hooks.TriggerAfterTurn(ctx, state); err != nil {
		return nil, newTurnError("after_turn", threadID, err)
	}

	return o.buildResult(threadID, state, decision, draft, report)
}

func (o *Orchestrator) loadState(ctx context.Context, threadID string) (*types.TurnState, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.perCallTimeout)
	defer cancel()

	state, err := o.checkpoints.Load(callCtx, threadID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return types.NewTurnState(threadID), nil
	case err != nil:
		return nil, newTurnError("load", threadID, fmt.Errorf("%w: %v", ErrCheckpointFailed, err))
	}
	return state, nil
}

func (o *Orchestrator) saveState(ctx context.Context, state *types.TurnState) error {
	callCtx, cancel := context.WithTimeout(ctx, o.config.perCallTimeout)
	defer cancel()

	if err := o.checkpoints.Save(callCtx, state.ThreadID, state); err != nil {
		return newTurnError("save", state.ThreadID, fmt.Errorf("%w: %v", ErrCheckpointFailed, err))
	}
	return nil
}

// maybeCompact compacts history when it exceeds the threshold.
// Compaction is best-effort: on failure the turn proceeds with the
// uncompacted history.
func (o *Orchestrator) maybeCompact(ctx context.Context, state *types.TurnState) {
	if o.compactor == nil || !o.compactor.NeedsCompaction(state.Messages) {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, o.config.perCallTimeout)
	defer cancel()

	original := len(state.Messages)
	result, err := o.compactor.Compact(callCtx, state.Messages)
	if err != nil {
		o.logger.Warn("compaction failed, proceeding with full history",
			"thread_id", state.ThreadID, "error", err)
		return
	}

	state.Messages = result.Messages
	state.CompactionApplied = result.MessagesRemoved > 0
	state.OriginalMessageCount = original

	if state.CompactionApplied {
		o.logger.Info("history compacted",
			"thread_id", state.ThreadID,
			"original_tokens", result.OriginalTokens,
			"compacted_tokens", result.CompactedTokens,
			"compression_ratio", result.CompressionRatio,
		)
		if err := o.hooks.TriggerAfterCompaction(ctx, state.ThreadID, result); err != nil {
			o.logger.Warn("after-compaction hook failed", "thread_id", state.ThreadID, "error", err)
		}
	}
}

func (o *Orchestrator) route(ctx context.Context, state *types.TurnState) (*router.Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.perCallTimeout)
	defer cancel()

	decision, err := o.router.Route(callCtx, state.Messages)
	if err != nil {
		return nil, newTurnError("route", state.ThreadID, fmt.Errorf("%w: %v", ErrRoutingFailed, err))
	}

	state.NextAction = decision.Action.String()
	state.RoutingConfidence = decision.Confidence
	state.Reasoning = decision.Reasoning

	if err := o.hooks.TriggerAfterRouting(ctx, state.ThreadID, decision); err != nil {
		return nil, newTurnError("after_routing", state.ThreadID, err)
	}
	return decision, nil
}

// generateAndVerify runs the bounded generate/verify/refine loop. The
// returned report is nil when verification is disabled.
func (o *Orchestrator) generateAndVerify(ctx context.Context, state *types.TurnState, decision *router.Decision) (*generate.Draft, *verify.Report, error) {
	draft, err := o.generateDraft(ctx, state, decision, "", "")
	if err != nil {
		return nil, nil, err
	}

	if o.verifier == nil {
		return draft, nil, nil
	}

	// phase tracks the refinement loop against its state machine; a
	// violation indicates an orchestrator bug, not a turn failure.
	phase := runstate.StateGenerated
	advance := func(next runstate.State) {
		if !phase.CanTransitionTo(next) {
			o.logger.Error("invalid refinement transition",
				"thread_id", state.ThreadID, "from", phase.String(), "to", next.String())
		}
		phase = next
	}

	for {
		advance(runstate.StateVerifying)

		report, err := o.verifyDraft(ctx, state, draft)
		if err != nil {
			return nil, nil, err
		}
		attempt := state.RefinementAttempts + 1
		if err := o.hooks.TriggerAfterVerification(ctx, state.ThreadID, attempt, report); err != nil {
			return nil, nil, newTurnError("after_verification", state.ThreadID, err)
		}

		if report.Passed {
			advance(runstate.StatePassed)
			state.SetVerification(true, report.OverallScore, report.Feedback)
			return draft, report, nil
		}

		if state.RefinementAttempts >= o.config.maxRefinementAttempts {
			advance(runstate.StateExhausted)
			state.SetVerification(false, report.OverallScore, report.Feedback)
			o.logger.Warn("refinement budget exhausted, returning last draft",
				"thread_id", state.ThreadID,
				"attempts", state.RefinementAttempts,
				"score", report.OverallScore,
			)
			return draft, report, nil
		}

		advance(runstate.StateNeedsRefinement)
		state.RefinementAttempts++

		advance(runstate.StateRefining)
		refined, err := o.generateDraft(ctx, state, decision, report.Feedback, draft.Text)
		if err != nil {
			return nil, nil, err
		}
		draft = refined
		advance(runstate.StateGenerated)
	}
}

func (o *Orchestrator) generateDraft(ctx context.Context, state *types.TurnState, decision *router.Decision, feedback, previous string) (*generate.Draft, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.perCallTimeout)
	defer cancel()

	draft, err := o.generator.Generate(callCtx, generate.Input{
		Messages:      state.Messages,
		Action:        decision.Action,
		Feedback:      feedback,
		PreviousDraft: previous,
	})
	if err != nil {
		return nil, newTurnError("generate", state.ThreadID, fmt.Errorf("%w: %v", ErrGenerationFailed, err))
	}
	return draft, nil
}

func (o *Orchestrator) verifyDraft(ctx context.Context, state *types.TurnState, draft *generate.Draft) (*verify.Report, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.perCallTimeout)
	defer cancel()

	report, err := o.verifier.Verify(callCtx, state.UserRequest, state.Messages, draft.Text)
	if err != nil {
		return nil, newTurnError("verify", state.ThreadID, fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}
	return report, nil
}

func (o *Orchestrator) buildResult(threadID string, state *types.TurnState, decision *router.Decision, draft *generate.Draft, report *verify.Report) (*Result, error) {
	result := &Result{
		ThreadID:           threadID,
		ResponseText:       draft.Text,
		Action:             decision.Action,
		RoutingConfidence:  decision.Confidence,
		RefinementAttempts: state.RefinementAttempts,
		CompactionApplied:  state.CompactionApplied,
		ToolsUsed:          draft.ToolsUsed,
	}

	if report == nil {
		result.VerificationSkipped = true
	} else {
		result.VerificationPassed = report.Passed
		result.VerificationScore = report.OverallScore
		result.VerificationFeedback = report.Feedback
	}

	if o.renderer != nil {
		html, err := o.renderer.HTML(draft.Text)
		if err != nil {
			return nil, newTurnError("render", threadID, err)
		}
		result.ResponseHTML = html
	}
	return result, nil
}
