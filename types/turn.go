package types

import "time"

// TurnState is the unit of work for one orchestration run. It is
// hydrated from the checkpoint store at the start of a turn, mutated in
// place as the turn moves through the pipeline, and persisted back at
// the end of the run. It must never be shared by two concurrent runs
// for the same thread.
type TurnState struct {
	// ThreadID groups all turns of one conversation and keys the
	// checkpoint store.
	ThreadID string `json:"thread_id"`

	// Messages is the ordered conversation history. Append-only
	// within a run except where compaction rewrites the prefix.
	Messages []Message `json:"messages"`

	// UserRequest is the original natural-language request for this
	// turn, held apart from Messages so verification always judges
	// against the true ask even after compaction rewrites history.
	UserRequest string `json:"user_request"`

	// Routing outcome.
	NextAction        string  `json:"next_action,omitempty"`
	RoutingConfidence float64 `json:"routing_confidence,omitempty"`
	Reasoning         string  `json:"reasoning,omitempty"`

	// Compaction audit trail.
	CompactionApplied    bool `json:"compaction_applied"`
	OriginalMessageCount int  `json:"original_message_count,omitempty"`

	// Verification outcome. VerificationPassed is nil until the
	// verifier has evaluated the current draft.
	VerificationPassed   *bool   `json:"verification_passed,omitempty"`
	VerificationScore    float64 `json:"verification_score,omitempty"`
	VerificationFeedback string  `json:"verification_feedback,omitempty"`

	// RefinementAttempts counts completed refinement cycles. It is
	// monotonically increasing and bounded by configuration.
	RefinementAttempts int `json:"refinement_attempts"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewTurnState creates an empty turn state for a thread.
func NewTurnState(threadID string) *TurnState {
	return &TurnState{
		ThreadID: threadID,
		Messages: []Message{},
	}
}

// AppendMessage appends a message to the conversation history.
func (s *TurnState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// SetVerification records a verification outcome for the current draft.
func (s *TurnState) SetVerification(passed bool, score float64, feedback string) {
	s.VerificationPassed = &passed
	s.VerificationScore = score
	s.VerificationFeedback = feedback
}

// ClearVerification resets the verification fields to unset. Called
// before each verifier invocation so a score can never refer to a
// stale draft.
func (s *TurnState) ClearVerification() {
	s.VerificationPassed = nil
	s.VerificationScore = 0
	s.VerificationFeedback = ""
}

// Verified reports whether verification has been evaluated and passed.
func (s *TurnState) Verified() bool {
	return s.VerificationPassed != nil && *s.VerificationPassed
}

// Clone returns a deep copy of the turn state. Stores that keep state
// in memory hand out clones so callers cannot mutate stored state
// through an alias.
func (s *TurnState) Clone() *TurnState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = CloneMessages(s.Messages)
	if s.VerificationPassed != nil {
		v := *s.VerificationPassed
		out.VerificationPassed = &v
	}
	return &out
}
