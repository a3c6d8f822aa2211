// Package testutil provides test doubles shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turnloop/turnloop/llm"
)

// FakeLLM is a scripted llm.Client. Each call pops the next step from
// its queue; a step is either a result or an error. Calls beyond the
// script reuse the last step, so steady-state fakes need one entry.
type FakeLLM struct {
	mu    sync.Mutex
	steps []FakeStep

	// Calls records every request for assertions.
	Calls []llm.Request

	// StructuredCalls records the schema names of structured calls.
	StructuredCalls []string

	// Delay, when non-nil, is invoked before answering. Tests use it
	// to widen race windows or to simulate slow providers.
	Delay func(ctx context.Context) error
}

// FakeStep is one scripted response.
type FakeStep struct {
	Text       string
	ToolCalls  []llm.ToolCall
	Structured string // raw JSON for CompleteStructured
	Err        error
}

// NewFakeLLM creates a fake with the given script.
func NewFakeLLM(steps ...FakeStep) *FakeLLM {
	return &FakeLLM{steps: steps}
}

// Script appends steps to the fake.
func (f *FakeLLM) Script(steps ...FakeStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, steps...)
}

func (f *FakeLLM) next() FakeStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return FakeStep{Text: "ok"}
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return step
}

// Complete implements llm.Client.
func (f *FakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	if f.Delay != nil {
		if err := f.Delay(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	f.mu.Unlock()

	step := f.next()
	if step.Err != nil {
		return nil, step.Err
	}
	completion := &llm.Completion{Text: step.Text, ToolCalls: step.ToolCalls, StopReason: "end_turn"}
	if len(step.ToolCalls) > 0 {
		completion.StopReason = "tool_use"
	}
	return completion, nil
}

// CompleteStructured implements llm.Client.
func (f *FakeLLM) CompleteStructured(ctx context.Context, req llm.Request, schema llm.Schema) (json.RawMessage, error) {
	if f.Delay != nil {
		if err := f.Delay(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	f.StructuredCalls = append(f.StructuredCalls, schema.Name)
	f.mu.Unlock()

	step := f.next()
	if step.Err != nil {
		return nil, step.Err
	}
	return json.RawMessage(step.Structured), nil
}

// CallCount returns how many calls the fake has served.
func (f *FakeLLM) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
