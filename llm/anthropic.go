package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/turnloop/turnloop/types"
)

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 4096

// AnthropicClient implements Client on top of the Anthropic Messages
// API. Structured output is obtained by forcing a single tool call
// whose input schema is the requested schema.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient creates a client for the given model.
func NewAnthropicClient(client *anthropic.Client, model string) *AnthropicClient {
	return &AnthropicClient{
		client:    client,
		model:     model,
		maxTokens: DefaultMaxTokens,
	}
}

// SetMaxTokens overrides the default response-length cap.
func (c *AnthropicClient) SetMaxTokens(n int) {
	if n > 0 {
		c.maxTokens = n
	}
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	params := c.buildParams(req)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.classify(err)
	}

	completion := &Completion{
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			completion.Text += b.Text
		case anthropic.ToolUseBlock:
			completion.ToolCalls = append(completion.ToolCalls, ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: json.RawMessage(b.Input),
			})
		}
	}

	return completion, nil
}

// CompleteStructured implements Client. The schema is presented as the
// only available tool and the model is forced to call it, so a
// well-behaved response always carries exactly one tool_use block
// whose input is the structured object.
func (c *AnthropicClient) CompleteStructured(ctx context.Context, req Request, schema Schema) (json.RawMessage, error) {
	params := c.buildParams(req)

	params.Tools = []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       constant.Object("object"),
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		},
	}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: schema.Name},
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.classify(err)
	}

	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.ToolUseBlock); ok && b.Name == schema.Name {
			if !json.Valid([]byte(b.Input)) {
				return nil, fmt.Errorf("%w: tool input is not valid JSON", ErrMalformedOutput)
			}
			return json.RawMessage(b.Input), nil
		}
	}

	return nil, fmt.Errorf("%w: response carried no %s tool call", ErrMalformedOutput, schema.Name)
}

// buildParams converts a Request to Anthropic message parameters.
// System-role messages are folded into the system prompt; the
// remainder keep their roles.
func (c *AnthropicClient) buildParams(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	system := req.System
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.MessageParamRole(m.Role),
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(m.Content),
			},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			tool := anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       constant.Object("object"),
					Properties: t.InputSchema["properties"],
				},
			}
			if required, ok := t.InputSchema["required"].([]string); ok {
				tool.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}

	return params
}

// classify maps SDK and context errors onto the failure taxonomy.
func (c *AnthropicClient) classify(err error) error {
	if ctxErr := classifyContextErr(err); ctxErr != nil {
		return ctxErr
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return wrapCategory(ErrRateLimited, err)
		case apiErr.StatusCode == 408 || apiErr.StatusCode == 504:
			return wrapCategory(ErrTimeout, err)
		default:
			return wrapCategory(ErrTransport, err)
		}
	}

	return wrapCategory(ErrTransport, err)
}
