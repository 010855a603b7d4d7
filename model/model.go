package model

import (
	"context"

	"github.com/jcqin2022/AIAssistant/core"
)

// FinishReason tells an agent whether a response is a final answer or a
// request to invoke a capability.
type FinishReason string

const (
	// FinishStop marks a terminal answer.
	FinishStop FinishReason = "stop"
	// FinishToolCalls marks a capability call request.
	FinishToolCalls FinishReason = "tool_calls"
	// FinishLength marks an answer truncated by the token limit. Agents treat
	// it as terminal.
	FinishLength FinishReason = "length"
)

// ToolDefinition declaratively exposes a callable capability to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input: the full ordered message list
// (system prompt first) and the capability schemas.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the result of one model call.
type Response struct {
	ID           string                `json:"id"`
	FinishReason FinishReason          `json:"finish_reason"`
	Content      string                `json:"content"`
	Calls        []core.CapabilityCall `json:"calls,omitempty"`
	Usage        *TokenUsage           `json:"usage,omitempty"`
}

// IsCapabilityCall reports whether the response asks for a capability
// invocation. Only the first entry of Calls is honoured by agents.
func (r *Response) IsCapabilityCall() bool {
	return r != nil && r.FinishReason == FinishToolCalls && len(r.Calls) > 0
}

// Info contains metadata about a backend implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "azure", "deepseek", "anthropic", "scripted"
	SupportsTools bool   `json:"supports_tools"`
}

// Backend is the minimal interface agents use to drive generation.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the backend implementation.
	Info() Info
}
