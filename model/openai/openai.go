// Package openai provides an implementation of model.Backend using the OpenAI
// Chat Completions API with function calling. The same adapter serves Azure
// OpenAI deployments and OpenAI compatible endpoints such as DeepSeek.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/model"
)

// Options configure the OpenAI backend adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// UseMaxTokens sends the legacy max_tokens field instead of
	// max_completion_tokens (needed by some compatible endpoints).
	UseMaxTokens bool

	APIKey  string
	BaseURL string

	// AzureEndpoint switches the client to Azure OpenAI routing.
	AzureEndpoint string
	APIVersion    string

	// Provider is reported through Info; defaults to "openai" or "azure".
	Provider string
}

// Model wraps the OpenAI Chat Completions API behind model.Backend.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new backend using the official client. Credentials
// fall back to the SDK environment variables when unset.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var reqOpts []option.RequestOption
	if opts.AzureEndpoint != "" {
		reqOpts = append(reqOpts, azure.WithEndpoint(opts.AzureEndpoint, opts.APIVersion))
		if opts.APIKey != "" {
			reqOpts = append(reqOpts, azure.WithAPIKey(opts.APIKey))
		}
		if opts.Provider == "" {
			opts.Provider = "azure"
		}
	} else {
		if opts.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		}
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
	}

	client := openai.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new backend from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Generate implements model.Backend.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req, buildMessages(req.Messages))

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	return convertResponse(resp)
}

// buildMessages converts normalized messages into OpenAI chat messages.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if msg.Call == nil {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   msg.Call.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      msg.Call.Name,
							Arguments: msg.Call.Arguments,
						},
					}},
				},
			})
		case core.RoleTool:
			id := ""
			if msg.Call != nil {
				id = msg.Call.ID
			}
			messages = append(messages, openai.ToolMessage(msg.Content, id))
		}
	}
	return messages
}

// buildParams assembles the request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       m.opts.Model,
		Temperature: openai.Float(m.opts.Temperature),
	}
	if m.opts.MaxCompletionTokens > 0 {
		if m.opts.UseMaxTokens {
			params.MaxTokens = openai.Int(m.opts.MaxCompletionTokens)
		} else {
			params.MaxCompletionTokens = openai.Int(m.opts.MaxCompletionTokens)
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

func buildTools(defs []model.ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, tdef := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	return tools
}

// convertResponse maps the first choice of a completion to model.Response.
func convertResponse(resp *openai.ChatCompletion) (*model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	ch0 := resp.Choices[0]

	out := &model.Response{
		ID:      resp.ID,
		Content: ch0.Message.Content,
		Usage: &model.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range ch0.Message.ToolCalls {
		out.Calls = append(out.Calls, core.CapabilityCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	switch reason := string(ch0.FinishReason); {
	case len(out.Calls) > 0 && (reason == "tool_calls" || reason == "function_call"):
		out.FinishReason = model.FinishToolCalls
	case reason == "length":
		out.FinishReason = model.FinishLength
	default:
		out.FinishReason = model.FinishStop
	}
	return out, nil
}

// Info returns metadata describing this backend.
func (m *Model) Info() model.Info {
	provider := m.opts.Provider
	if provider == "" {
		provider = "openai"
	}
	return model.Info{
		Name:          m.opts.Model,
		Provider:      provider,
		SupportsTools: true,
	}
}
