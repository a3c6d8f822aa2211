// Package router classifies an incoming turn into the action that
// drives the rest of the pipeline.
//
// Classification is one schema-constrained completion. The output is
// validated strictly: an unknown action, an out-of-range confidence,
// or unparsable JSON is a stage failure for the turn, never silently
// defaulted. An unrouted turn has no safe default action.
package router

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/types"
)

// Action is the routing outcome for a turn.
type Action string

const (
	// ActionRespond answers directly from conversation context.
	ActionRespond Action = "respond"

	// ActionUseTools consults the tool layer before answering.
	ActionUseTools Action = "use_tools"

	// ActionClarify asks the user a clarifying question instead of
	// answering.
	ActionClarify Action = "clarify"
)

// AllActions returns every valid action.
func AllActions() []Action {
	return []Action{ActionRespond, ActionUseTools, ActionClarify}
}

// IsValid reports whether the action is one of the known values.
func (a Action) IsValid() bool {
	switch a {
	case ActionRespond, ActionUseTools, ActionClarify:
		return true
	default:
		return false
	}
}

// String returns the string form of the action.
func (a Action) String() string {
	return string(a)
}

// Decision is a validated routing decision.
type Decision struct {
	Action     Action
	Confidence float64
	Reasoning  string
}

const routingSystemPrompt = `You are a routing classifier for a conversational assistant. Given the conversation so far, decide how the assistant should handle the latest user message.

Actions:
- "respond": the assistant can answer directly from the conversation context.
- "use_tools": the assistant needs external tools (search, computation, data lookup) before answering.
- "clarify": the request is too ambiguous to act on; ask a clarifying question.

Pick exactly one action, report your confidence in [0,1], and give a short reasoning.`

// routingSchema constrains the classifier output.
var routingSchema = llm.Schema{
	Name:        "route_turn",
	Description: "Routing decision for the latest user message.",
	Properties: map[string]any{
		"action": map[string]any{
			"type": "string",
			"enum": []string{string(ActionRespond), string(ActionUseTools), string(ActionClarify)},
		},
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
		"reasoning": map[string]any{
			"type": "string",
		},
	},
	Required: []string{"action", "confidence", "reasoning"},
}

// Router classifies turns with one structured completion per turn.
type Router struct {
	client llm.Client
}

// New creates a Router backed by the given completion client.
func New(client llm.Client) *Router {
	return &Router{client: client}
}

// Route classifies the turn represented by the (possibly compacted)
// message list. Model output that fails validation is reported as
// llm.ErrMalformedOutput.
func (r *Router) Route(ctx context.Context, messages []types.Message) (*Decision, error) {
	raw, err := r.client.CompleteStructured(ctx, llm.Request{
		System:   routingSystemPrompt,
		Messages: messages,
	}, routingSchema)
	if err != nil {
		return nil, fmt.Errorf("routing call failed: %w", err)
	}

	return parseDecision(raw)
}

// parseDecision validates the raw classifier output against the closed
// decision shape.
func parseDecision(raw []byte) (*Decision, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: routing output is not valid JSON", llm.ErrMalformedOutput)
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: routing output is not a JSON object", llm.ErrMalformedOutput)
	}

	actionField := parsed.Get("action")
	if actionField.Type != gjson.String {
		return nil, fmt.Errorf("%w: routing output missing string field %q", llm.ErrMalformedOutput, "action")
	}
	action := Action(actionField.String())
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: unknown routing action %q", llm.ErrMalformedOutput, actionField.String())
	}

	confidenceField := parsed.Get("confidence")
	if confidenceField.Type != gjson.Number {
		return nil, fmt.Errorf("%w: routing output missing number field %q", llm.ErrMalformedOutput, "confidence")
	}
	confidence := confidenceField.Float()
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: routing confidence %f outside [0,1]", llm.ErrMalformedOutput, confidence)
	}

	reasoningField := parsed.Get("reasoning")
	if reasoningField.Type != gjson.String {
		return nil, fmt.Errorf("%w: routing output missing string field %q", llm.ErrMalformedOutput, "reasoning")
	}

	return &Decision{
		Action:     action,
		Confidence: confidence,
		Reasoning:  reasoningField.String(),
	}, nil
}
