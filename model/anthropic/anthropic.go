// Package anthropic provides a model.Backend for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/internal/util"
	"github.com/jcqin2022/AIAssistant/model"
)

// Options configures the Anthropic backend adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind model.Backend.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic backend using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic backend from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Generate implements model.Backend.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if system := extractSystem(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	out := &model.Response{
		ID:           resp.ID,
		FinishReason: model.FinishStop,
		Usage: &model.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(raw)
				}
			}
			out.Calls = append(out.Calls, core.CapabilityCall{ID: toolBlock.ID, Name: toolBlock.Name, Arguments: args})
		}
	}
	out.Content = text.String()

	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		if len(out.Calls) > 0 {
			out.FinishReason = model.FinishToolCalls
		}
	case anthropic.StopReasonMaxTokens:
		out.FinishReason = model.FinishLength
	}

	return out, nil
}

// buildMessages converts normalized messages into Anthropic message params.
// Tool results travel in user turns; consecutive turns of the same role are
// merged because the API requires alternation.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		roles    []core.Role
	)

	add := func(role core.Role, block anthropic.ContentBlockParamUnion) {
		if n := len(messages); n > 0 && roles[n-1] == role {
			messages[n-1].Content = append(messages[n-1].Content, block)
			return
		}
		if role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
		roles = append(roles, role)
	}

	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			if msg.Call != nil {
				var input any = map[string]any{}
				if msg.Call.Arguments != "" {
					if err := json.Unmarshal([]byte(msg.Call.Arguments), &input); err != nil {
						input = msg.Call.Arguments
					}
				}
				add(core.RoleAssistant, anthropic.NewToolUseBlock(msg.Call.ID, input, msg.Call.Name))
				continue
			}
			if msg.Content != "" {
				add(core.RoleAssistant, anthropic.NewTextBlock(msg.Content))
			}
		case core.RoleTool:
			id := ""
			if msg.Call != nil {
				id = msg.Call.ID
			}
			add(core.RoleUser, anthropic.NewToolResultBlock(id, msg.Content, false))
		default:
			if msg.Content != "" {
				add(core.RoleUser, anthropic.NewTextBlock(msg.Content))
			}
		}
	}

	return messages
}

func extractSystem(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

// buildTools converts capability schemas to Anthropic tool params.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if tool.Parameters != nil {
			if properties, ok := tool.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			inputSchema.Required = util.RequiredFields(tool.Parameters)
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if out[i].OfTool != nil && tool.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return out
}

// Info returns metadata describing this backend.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
