// Package llm defines the completion-service boundary used for
// routing, generation, summarization, and verification, together with
// the Anthropic-backed implementation and a retrying decorator.
//
// Two output modes are supported: free text (Complete, optionally with
// tool definitions the model may call) and schema-constrained
// structured output (CompleteStructured). Failures surface as one of
// four distinguishable categories: timeout, rate limit, malformed
// output, and transport error. See errors.go.
package llm

import (
	"context"
	"encoding/json"

	"github.com/turnloop/turnloop/types"
)

// Request is a completion request.
type Request struct {
	// System is the system prompt. Leading system-role messages in
	// Messages are folded into it by implementations that model the
	// system prompt out of band.
	System string

	// Messages is the conversation to complete.
	Messages []types.Message

	// MaxTokens caps the response length. Zero means the
	// implementation default.
	MaxTokens int

	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64

	// Tools the model may call during a free-text completion.
	Tools []ToolDef
}

// ToolDef describes a callable tool in provider-neutral form.
type ToolDef struct {
	Name        string
	Description string

	// InputSchema is a JSON Schema object ("type": "object").
	InputSchema map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Completion is the result of a free-text completion.
type Completion struct {
	// Text is the concatenated text content of the response.
	Text string

	// ToolCalls holds tool invocations the model requested, if any.
	ToolCalls []ToolCall

	// StopReason is the provider's stop reason ("end_turn",
	// "tool_use", ...).
	StopReason string

	// Usage reports token consumption when the provider supplies it.
	Usage Usage
}

// Usage holds token accounting for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Schema constrains a structured completion. Output must be a JSON
// object matching Properties/Required.
type Schema struct {
	// Name identifies the schema to the model (letters, digits,
	// underscores).
	Name string

	// Description tells the model what the object represents.
	Description string

	// Properties is the JSON Schema "properties" map.
	Properties map[string]any

	// Required lists property names that must be present.
	Required []string
}

// Client is the completion service consumed by the runtime. All calls
// honor context cancellation and deadlines; implementations must
// return classified errors (see errors.go) so callers can distinguish
// retryable infrastructure failures from malformed model output.
type Client interface {
	// Complete performs a free-text completion.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// CompleteStructured performs a schema-constrained completion and
	// returns the raw JSON object produced by the model. Output that
	// is not a JSON object is reported as ErrMalformedOutput.
	CompleteStructured(ctx context.Context, req Request, schema Schema) (json.RawMessage, error)
}
