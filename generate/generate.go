// Package generate produces draft assistant responses.
//
// A draft is produced from the working message list and the routing
// decision: direct answers and clarifying questions take one
// completion, tool-routed turns loop through tool execution until the
// model stops requesting tools or the iteration bound is hit.
// Refinement feedback from a failed verification is injected into the
// request, never into the canonical history.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/router"
	"github.com/turnloop/turnloop/tool"
	"github.com/turnloop/turnloop/types"
)

// ErrToolIterationsExceeded is returned when the model keeps
// requesting tools past the configured bound.
var ErrToolIterationsExceeded = errors.New("tool iteration limit exceeded")

// DefaultMaxToolIterations bounds the tool loop when unconfigured.
const DefaultMaxToolIterations = 5

const defaultSystemPrompt = `You are a helpful conversational assistant. Answer from the conversation context, be concrete, and say so when you do not know.`

const clarifyInstruction = `The user's request is ambiguous. Do not answer it. Instead ask one short clarifying question that would let you answer.`

// Config controls generation.
type Config struct {
	// SystemPrompt replaces the default assistant prompt.
	SystemPrompt string

	// MaxToolIterations bounds the request/execute loop for
	// tool-routed turns. Zero means DefaultMaxToolIterations.
	MaxToolIterations int

	// ToolTimeout bounds each tool execution. Zero means
	// tool.DefaultTimeout.
	ToolTimeout time.Duration

	// Temperature, when non-nil, is forwarded to the model.
	Temperature *float64

	// OnToolCall, when set, observes every tool execution with its
	// input, output, and error. An observer error aborts generation.
	OnToolCall func(ctx context.Context, name string, input json.RawMessage, output string, err error) error
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = DefaultMaxToolIterations
	}
	return c
}

// Input is one generation request.
type Input struct {
	// Messages is the working history for the turn.
	Messages []types.Message

	// Action is the routing decision driving the generation mode.
	Action router.Action

	// Feedback carries verifier feedback when regenerating a draft.
	// Empty on the first attempt.
	Feedback string

	// PreviousDraft is the rejected draft being refined. Set together
	// with Feedback.
	PreviousDraft string
}

// Draft is a generated candidate response.
type Draft struct {
	Text string

	// ToolsUsed lists the tool names executed for this draft, in
	// execution order.
	ToolsUsed []string
}

// Generator produces drafts.
type Generator struct {
	client   llm.Client
	tools    *tool.Registry
	executor *tool.Executor
	config   Config
}

// New creates a Generator. The registry may be nil when no tools are
// exposed; tool-routed turns then degrade to a direct completion.
func New(client llm.Client, tools *tool.Registry, config Config) *Generator {
	g := &Generator{client: client, tools: tools, config: config.withDefaults()}
	if tools != nil {
		g.executor = tool.NewExecutor(tools, config.ToolTimeout)
	}
	return g
}

// Generate produces a draft for the turn.
func (g *Generator) Generate(ctx context.Context, in Input) (*Draft, error) {
	system := g.buildSystem(in)

	if in.Action == router.ActionUseTools && g.tools != nil && g.tools.Count() > 0 {
		return g.generateWithTools(ctx, system, in.Messages)
	}

	completion, err := g.client.Complete(ctx, llm.Request{
		System:      system,
		Messages:    in.Messages,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generation call failed: %w", err)
	}
	return &Draft{Text: completion.Text}, nil
}

func (g *Generator) buildSystem(in Input) string {
	var b strings.Builder
	b.WriteString(g.config.SystemPrompt)

	if in.Action == router.ActionClarify {
		b.WriteString("\n\n")
		b.WriteString(clarifyInstruction)
	}

	if in.Feedback != "" {
		b.WriteString("\n\nYour previous draft was rejected by a quality review. Produce an improved response that addresses this feedback:\n")
		b.WriteString(in.Feedback)
		if in.PreviousDraft != "" {
			b.WriteString("\n\n<rejected_draft>\n")
			b.WriteString(in.PreviousDraft)
			b.WriteString("\n</rejected_draft>")
		}
	}
	return b.String()
}

// generateWithTools loops completion and tool execution. Tool results
// are folded back into the request as tagged user messages; the
// canonical history passed in is never mutated.
func (g *Generator) generateWithTools(ctx context.Context, system string, messages []types.Message) (*Draft, error) {
	working := types.CloneMessages(messages)
	defs := g.tools.Defs()

	var used []string
	for iteration := 0; iteration < g.config.MaxToolIterations; iteration++ {
		completion, err := g.client.Complete(ctx, llm.Request{
			System:      system,
			Messages:    working,
			Temperature: g.config.Temperature,
			Tools:       defs,
		})
		if err != nil {
			return nil, fmt.Errorf("generation call failed: %w", err)
		}

		if len(completion.ToolCalls) == 0 {
			return &Draft{Text: completion.Text, ToolsUsed: used}, nil
		}

		for _, call := range completion.ToolCalls {
			output, err := g.executor.Execute(ctx, call.Name, call.Input)
			if g.config.OnToolCall != nil {
				if hookErr := g.config.OnToolCall(ctx, call.Name, call.Input, output, err); hookErr != nil {
					return nil, fmt.Errorf("tool call observer failed: %w", hookErr)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("tool execution failed: %w", err)
			}
			used = append(used, call.Name)

			working = append(working,
				types.NewMessage(types.RoleAssistant, formatToolCall(call)),
				types.NewMessage(types.RoleUser, formatToolResult(call.Name, output)),
			)
		}
	}

	return nil, fmt.Errorf("%w: still requesting tools after %d iterations", ErrToolIterationsExceeded, g.config.MaxToolIterations)
}

func formatToolCall(call llm.ToolCall) string {
	return fmt.Sprintf("<tool_call name=%q>%s</tool_call>", call.Name, string(call.Input))
}

func formatToolResult(name, output string) string {
	return fmt.Sprintf("<tool_result name=%q>%s</tool_result>", name, output)
}
