package turnloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/turnloop/turnloop/checkpoint"
	"github.com/turnloop/turnloop/internal/testutil"
	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/router"
	"github.com/turnloop/turnloop/types"
)

func routeStep(action string, confidence float64) testutil.FakeStep {
	return testutil.FakeStep{Structured: fmt.Sprintf(
		`{"action":%q,"confidence":%f,"reasoning":"scripted"}`, action, confidence)}
}

func verifyStep(score float64, feedback string) testutil.FakeStep {
	return testutil.FakeStep{Structured: fmt.Sprintf(
		`{"accuracy":%[1]f,"completeness":%[1]f,"clarity":%[1]f,"relevance":%[1]f,"safety":%[1]f,"sources":%[1]f,"feedback":%[2]q}`,
		score, feedback)}
}

// newOrchestrator disables retries so scripted fakes stay strictly
// sequential; a later option in opts can put them back.
func newOrchestrator(t *testing.T, fake *testutil.FakeLLM, store checkpoint.Store, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithRetryConfig(llm.RetryConfig{MaxRetries: 0})}, opts...)
	orch, err := New(Config{Client: fake, Checkpoints: store}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return orch
}

func TestProcessTurnHappyPath(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.95),
		testutil.FakeStep{Text: "The capital of France is Paris."},
		verifyStep(0.9, ""),
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "What is the capital of France?")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	if result.ResponseText != "The capital of France is Paris." {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}
	if result.Action != router.ActionRespond {
		t.Errorf("Action = %q", result.Action)
	}
	if !result.VerificationPassed || result.VerificationSkipped {
		t.Errorf("verification: passed=%v skipped=%v", result.VerificationPassed, result.VerificationSkipped)
	}
	if result.RefinementAttempts != 0 {
		t.Errorf("RefinementAttempts = %d, want 0", result.RefinementAttempts)
	}

	state, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(state.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(state.Messages))
	}
	if state.Messages[0].Role != types.RoleUser || state.Messages[1].Role != types.RoleAssistant {
		t.Errorf("persisted roles = %s, %s", state.Messages[0].Role, state.Messages[1].Role)
	}
	if state.NextAction != "respond" {
		t.Errorf("persisted NextAction = %q", state.NextAction)
	}
	if !state.Verified() {
		t.Error("persisted state not marked verified")
	}
}

func TestProcessTurnRefinementExhausted(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "draft one"},
		verifyStep(0.4, "add detail"),
		testutil.FakeStep{Text: "draft two"},
		verifyStep(0.5, "still too thin"),
		testutil.FakeStep{Text: "draft three"},
		verifyStep(0.6, "closer but not enough"),
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store, WithMaxRefinementAttempts(2))

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "explain quantum computing")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	// Budget spent: the last draft is delivered, marked unverified.
	if result.ResponseText != "draft three" {
		t.Errorf("ResponseText = %q, want last draft", result.ResponseText)
	}
	if result.VerificationPassed {
		t.Error("VerificationPassed = true after exhaustion")
	}
	if result.RefinementAttempts != 2 {
		t.Errorf("RefinementAttempts = %d, want 2", result.RefinementAttempts)
	}
	if result.VerificationFeedback != "closer but not enough" {
		t.Errorf("VerificationFeedback = %q", result.VerificationFeedback)
	}

	state, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.Verified() {
		t.Error("exhausted turn persisted as verified")
	}
	if state.RefinementAttempts != 2 {
		t.Errorf("persisted RefinementAttempts = %d", state.RefinementAttempts)
	}
}

func TestProcessTurnRefinementRecovers(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "weak draft"},
		verifyStep(0.5, "cite your sources"),
		testutil.FakeStep{Text: "strong draft"},
		verifyStep(0.9, ""),
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "summarize the paper")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if result.ResponseText != "strong draft" {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}
	if !result.VerificationPassed {
		t.Error("VerificationPassed = false")
	}
	if result.RefinementAttempts != 1 {
		t.Errorf("RefinementAttempts = %d, want 1", result.RefinementAttempts)
	}

	// The refinement request carried the judge's feedback.
	var sawFeedback bool
	for _, call := range fake.Calls {
		if strings.Contains(call.System, "cite your sources") {
			sawFeedback = true
		}
	}
	if !sawFeedback {
		t.Error("refinement request missing judge feedback")
	}
}

func TestProcessTurnVerificationDisabled(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "unreviewed answer"},
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store, WithVerification(false))

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "hello")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !result.VerificationSkipped {
		t.Error("VerificationSkipped = false")
	}
	if result.VerificationPassed {
		t.Error("VerificationPassed = true with verification disabled")
	}
	// Only the routing call is structured.
	if len(fake.StructuredCalls) != 1 {
		t.Errorf("structured calls = %v, want routing only", fake.StructuredCalls)
	}
}

func TestProcessTurnRoutingFailurePersistsNothing(t *testing.T) {
	fake := testutil.NewFakeLLM(testutil.FakeStep{Err: llm.ErrTimeout})
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	_, err := orch.ProcessTurn(context.Background(), "thread-1", "hello")
	if !errors.Is(err, ErrRoutingFailed) {
		t.Fatalf("ProcessTurn() error = %v, want ErrRoutingFailed", err)
	}

	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatal("error is not a *TurnError")
	}
	if turnErr.ThreadID != "thread-1" || turnErr.Op != "route" {
		t.Errorf("TurnError = op %q thread %q", turnErr.Op, turnErr.ThreadID)
	}

	if _, err := store.Load(context.Background(), "thread-1"); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Error("failed turn left a checkpoint behind")
	}
}

func TestProcessTurnRetriesTransientFailures(t *testing.T) {
	// First routing attempt fails transiently; the next attempt is the
	// scripted decision. No WithRetryConfig: the default wiring must
	// retry on its own.
	fake := testutil.NewFakeLLM(
		testutil.FakeStep{Err: llm.ErrRateLimited},
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "recovered answer"},
		verifyStep(0.9, ""),
	)
	store := checkpoint.NewMemoryStore()
	orch, err := New(Config{Client: fake, Checkpoints: store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "hello")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if result.ResponseText != "recovered answer" {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}
	// Routing took two structured calls, verification one.
	if got := len(fake.StructuredCalls); got != 3 {
		t.Errorf("structured calls = %d, want 3", got)
	}
}

func TestProcessTurnGenerationFailure(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Err: llm.ErrTransport},
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	_, err := orch.ProcessTurn(context.Background(), "thread-1", "hello")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("ProcessTurn() error = %v, want ErrGenerationFailed", err)
	}
}

func TestProcessTurnVerificationInfraFailure(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "draft"},
		testutil.FakeStep{Err: llm.ErrRateLimited},
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	_, err := orch.ProcessTurn(context.Background(), "thread-1", "hello")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("ProcessTurn() error = %v, want ErrVerificationFailed", err)
	}
}

// hangingStore blocks the selected operations until the context
// expires.
type hangingStore struct {
	*checkpoint.MemoryStore
	hangLoad bool
	hangSave bool
}

func (s *hangingStore) Load(ctx context.Context, threadID string) (*types.TurnState, error) {
	if s.hangLoad {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.MemoryStore.Load(ctx, threadID)
}

func (s *hangingStore) Save(ctx context.Context, threadID string, state *types.TurnState) error {
	if s.hangSave {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.MemoryStore.Save(ctx, threadID, state)
}

func TestProcessTurnBoundsCheckpointIO(t *testing.T) {
	tests := []struct {
		name   string
		store  *hangingStore
		wantOp string
	}{
		{"hung load", &hangingStore{MemoryStore: checkpoint.NewMemoryStore(), hangLoad: true}, "load"},
		{"hung save", &hangingStore{MemoryStore: checkpoint.NewMemoryStore(), hangSave: true}, "save"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeLLM(
				routeStep("respond", 0.9),
				testutil.FakeStep{Text: "answer"},
				verifyStep(0.9, ""),
			)
			orch := newOrchestrator(t, fake, tt.store, WithPerCallTimeout(20*time.Millisecond))

			_, err := orch.ProcessTurn(context.Background(), "thread-1", "hello")
			if !errors.Is(err, ErrCheckpointFailed) {
				t.Fatalf("ProcessTurn() error = %v, want ErrCheckpointFailed", err)
			}
			var turnErr *TurnError
			if !errors.As(err, &turnErr) || turnErr.Op != tt.wantOp {
				t.Errorf("error = %v, want op %q", err, tt.wantOp)
			}
		})
	}
}

func seedLongHistory(t *testing.T, store checkpoint.Store, threadID string, messages int) {
	t.Helper()
	state := types.NewTurnState(threadID)
	for i := 0; i < messages; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		state.AppendMessage(types.NewMessage(role, strings.Repeat("conversation detail ", 10)))
	}
	if err := store.Save(context.Background(), threadID, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestProcessTurnCompactsLongHistory(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	seedLongHistory(t, store, "thread-1", 10)

	fake := testutil.NewFakeLLM(
		testutil.FakeStep{Text: "Earlier the user and assistant discussed trip details."},
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "final answer"},
		verifyStep(0.9, ""),
	)
	orch := newOrchestrator(t, fake, store,
		WithCompactionThreshold(100),
		WithRecentWindow(3),
	)

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "and the hotel?")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !result.CompactionApplied {
		t.Error("CompactionApplied = false")
	}

	state, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// summary + recent window + new assistant reply
	if !state.Messages[0].IsSummary {
		t.Error("first persisted message is not the summary")
	}
	if got := len(state.Messages); got != 5 {
		t.Errorf("persisted %d messages, want 5", got)
	}
	if state.Messages[len(state.Messages)-1].Content != "final answer" {
		t.Error("last persisted message is not the new reply")
	}
}

func TestProcessTurnCompactionFailureIsBestEffort(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	seedLongHistory(t, store, "thread-1", 10)

	fake := testutil.NewFakeLLM(
		testutil.FakeStep{Err: llm.ErrTransport}, // summarization
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "answer without compaction"},
		verifyStep(0.9, ""),
	)
	orch := newOrchestrator(t, fake, store,
		WithCompactionThreshold(100),
		WithRecentWindow(3),
	)

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "and the hotel?")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if result.CompactionApplied {
		t.Error("CompactionApplied = true after summarization failure")
	}
	if result.ResponseText != "answer without compaction" {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}

	state, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// 10 seeded + user + assistant, nothing summarized away.
	if got := len(state.Messages); got != 12 {
		t.Errorf("persisted %d messages, want 12", got)
	}
}

func TestProcessTurnSerializesSameThread(t *testing.T) {
	var inFlight, maxInFlight int64
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "first"},
		verifyStep(0.9, ""),
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "second"},
		verifyStep(0.9, ""),
	)
	fake.Delay = func(ctx context.Context) error {
		n := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)
		for {
			max := atomic.LoadInt64(&maxInFlight)
			if n <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return nil
	}

	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := orch.ProcessTurn(context.Background(), "thread-1", fmt.Sprintf("turn %d", n)); err != nil {
				t.Errorf("ProcessTurn() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxInFlight); got != 1 {
		t.Errorf("max concurrent model calls = %d, want 1", got)
	}

	state, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := len(state.Messages); got != 4 {
		t.Errorf("persisted %d messages, want 4", got)
	}
}

func TestProcessTurnRejectsConcurrentTurns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "slow answer"},
		verifyStep(0.9, ""),
	)
	fake.Delay = func(ctx context.Context) error {
		once.Do(func() {
			close(started)
			<-release
		})
		return nil
	}

	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store, WithRejectConcurrentTurns())

	done := make(chan error, 1)
	go func() {
		_, err := orch.ProcessTurn(context.Background(), "thread-1", "first")
		done <- err
	}()

	<-started
	_, err := orch.ProcessTurn(context.Background(), "thread-1", "second")
	if !errors.Is(err, ErrThreadBusy) {
		t.Fatalf("concurrent ProcessTurn() error = %v, want ErrThreadBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first ProcessTurn() error = %v", err)
	}
}

func TestProcessTurnRejectsEmptyInputs(t *testing.T) {
	fake := testutil.NewFakeLLM()
	orch := newOrchestrator(t, fake, checkpoint.NewMemoryStore())

	if _, err := orch.ProcessTurn(context.Background(), "", "hello"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty thread id: error = %v", err)
	}
	if _, err := orch.ProcessTurn(context.Background(), "thread-1", ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty message: error = %v", err)
	}
	if fake.CallCount() != 0 {
		t.Errorf("invalid turns reached the model: %d calls", fake.CallCount())
	}
}

func TestProcessTurnHTMLResponses(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "Use **bold** sparingly."},
		verifyStep(0.9, ""),
	)
	orch := newOrchestrator(t, fake, checkpoint.NewMemoryStore(), WithHTMLResponses())

	result, err := orch.ProcessTurn(context.Background(), "thread-1", "formatting advice?")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !strings.Contains(result.ResponseHTML, "<strong>bold</strong>") {
		t.Errorf("ResponseHTML = %q", result.ResponseHTML)
	}
}

func TestProcessTurnContinuesConversation(t *testing.T) {
	fake := testutil.NewFakeLLM(
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "Paris."},
		verifyStep(0.9, ""),
		routeStep("respond", 0.9),
		testutil.FakeStep{Text: "About 2.1 million."},
		verifyStep(0.9, ""),
	)
	store := checkpoint.NewMemoryStore()
	orch := newOrchestrator(t, fake, store)

	if _, err := orch.ProcessTurn(context.Background(), "thread-1", "Capital of France?"); err != nil {
		t.Fatalf("first turn error = %v", err)
	}
	if _, err := orch.ProcessTurn(context.Background(), "thread-1", "And its population?"); err != nil {
		t.Fatalf("second turn error = %v", err)
	}

	state, err := store.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := len(state.Messages); got != 4 {
		t.Fatalf("persisted %d messages, want 4", got)
	}
	if state.Messages[2].Content != "And its population?" {
		t.Errorf("second turn user message = %q", state.Messages[2].Content)
	}
}
