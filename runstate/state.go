// Package runstate provides the state machine definition for the
// refinement loop of a turn.
//
// A turn moves through generation and verification until it either
// passes verification or exhausts its refinement budget.
//
// State machine:
//
//	generated -> verifying          (draft handed to the judge)
//	verifying -> passed             (overall score meets threshold)
//	verifying -> needs_refinement   (score below threshold, budget left)
//	verifying -> exhausted          (score below threshold, budget spent)
//	needs_refinement -> refining    (feedback handed to the generator)
//	refining -> generated           (new draft produced)
//
// Terminal states (passed, exhausted) cannot transition further. An
// exhausted turn still delivers its last draft; it is a quality
// outcome, not an error.
package runstate

import "fmt"

// State represents where a turn is in its refinement loop.
type State string

const (
	// StateGenerated indicates a draft response exists but has not
	// been judged yet.
	StateGenerated State = "generated"

	// StateVerifying indicates the draft is being scored by the judge.
	StateVerifying State = "verifying"

	// StatePassed indicates the draft met the quality threshold and is
	// the final response.
	StatePassed State = "passed"

	// StateNeedsRefinement indicates the draft failed verification and
	// refinement attempts remain.
	StateNeedsRefinement State = "needs_refinement"

	// StateRefining indicates the generator is producing a new draft
	// from the judge's feedback.
	StateRefining State = "refining"

	// StateExhausted indicates the refinement budget ran out with no
	// passing draft. The last draft is delivered as-is.
	StateExhausted State = "exhausted"
)

// AllStates returns every state in the refinement loop.
func AllStates() []State {
	return []State{
		StateGenerated,
		StateVerifying,
		StatePassed,
		StateNeedsRefinement,
		StateRefining,
		StateExhausted,
	}
}

// TerminalStates returns the states the loop can end in.
func TerminalStates() []State {
	return []State{StatePassed, StateExhausted}
}

// IsValid reports whether the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StateGenerated, StateVerifying, StatePassed,
		StateNeedsRefinement, StateRefining, StateExhausted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state ends the loop.
func (s State) IsTerminal() bool {
	return s == StatePassed || s == StateExhausted
}

// CanTransitionTo reports whether moving to target is a valid step of
// the loop.
func (s State) CanTransitionTo(target State) bool {
	if s.IsTerminal() || s == target {
		return false
	}

	switch s {
	case StateGenerated:
		return target == StateVerifying
	case StateVerifying:
		return target == StatePassed || target == StateNeedsRefinement || target == StateExhausted
	case StateNeedsRefinement:
		return target == StateRefining
	case StateRefining:
		return target == StateGenerated
	}
	return false
}

// String returns the string form of the state.
func (s State) String() string {
	return string(s)
}

// Transition is one validated step of the loop.
type Transition struct {
	From State
	To   State
}

// Validate returns an error if the transition is not part of the loop.
func (t Transition) Validate() error {
	if !t.From.IsValid() {
		return fmt.Errorf("runstate: invalid source state %q", t.From)
	}
	if !t.To.IsValid() {
		return fmt.Errorf("runstate: invalid target state %q", t.To)
	}
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("runstate: invalid transition from %q to %q", t.From, t.To)
	}
	return nil
}

// ValidTransitions returns every allowed step of the loop.
func ValidTransitions() []Transition {
	return []Transition{
		{From: StateGenerated, To: StateVerifying},
		{From: StateVerifying, To: StatePassed},
		{From: StateVerifying, To: StateNeedsRefinement},
		{From: StateVerifying, To: StateExhausted},
		{From: StateNeedsRefinement, To: StateRefining},
		{From: StateRefining, To: StateGenerated},
	}
}
