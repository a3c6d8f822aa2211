// Package tool defines the tool abstraction the generator dispatches
// to when a turn is routed to tool use.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name returns the tool name used in model requests.
	Name() string

	// Description explains to the model what the tool does.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() Schema

	// Execute runs the tool and returns its textual result.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Schema is an object-typed JSON Schema for tool input.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one parameter in a tool schema.
type Property struct {
	// Type is the JSON Schema type: string, number, integer, boolean,
	// array, or object.
	Type string `json:"type"`

	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`

	// Items describes array elements when Type is "array".
	Items *Property `json:"items,omitempty"`

	// Properties describes nested fields when Type is "object".
	Properties map[string]Property `json:"properties,omitempty"`
}

// Func adapts a function into a Tool.
func Func(name, description string, schema Schema, fn func(context.Context, json.RawMessage) (string, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

type funcTool struct {
	name        string
	description string
	schema      Schema
	fn          func(context.Context, json.RawMessage) (string, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }
func (t *funcTool) InputSchema() Schema { return t.schema }

func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}
