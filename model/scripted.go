package model

import (
	"context"
	"errors"
	"sync"

	"github.com/jcqin2022/AIAssistant/core"
)

// ErrScriptExhausted is returned by a ScriptedModel with no responses left.
var ErrScriptExhausted = errors.New("scripted model has no responses left")

// ScriptedModel is a lightweight in-memory Backend useful for tests and
// examples. It replays queued responses in order and records every request.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	responses []*Response
	errs      []error
	requests  []Request
}

// NewScriptedModel constructs a ScriptedModel replaying responses.
func NewScriptedModel(name string, responses ...*Response) *ScriptedModel {
	m := &ScriptedModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}}
	for _, r := range responses {
		m.Add(r)
	}
	return m
}

// Add queues a response.
func (m *ScriptedModel) Add(r *Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	m.errs = append(m.errs, nil)
	return m
}

// AddError queues a failing call.
func (m *ScriptedModel) AddError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// Generate implements Backend.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, cloneRequest(req))

	if len(m.responses) == 0 {
		return nil, ErrScriptExhausted
	}
	resp, err := m.responses[0], m.errs[0]
	m.responses, m.errs = m.responses[1:], m.errs[1:]
	return resp, err
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Info implements Backend.
func (m *ScriptedModel) Info() Info { return m.info }

// FuncModel adapts a function to Backend. It is safe for concurrent use when
// fn is.
type FuncModel struct {
	info Info
	fn   func(ctx context.Context, req Request) (*Response, error)
}

// NewFuncModel constructs a FuncModel.
func NewFuncModel(name string, fn func(ctx context.Context, req Request) (*Response, error)) *FuncModel {
	return &FuncModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}, fn: fn}
}

// Generate implements Backend.
func (m *FuncModel) Generate(ctx context.Context, req Request) (*Response, error) {
	return m.fn(ctx, req)
}

// Info implements Backend.
func (m *FuncModel) Info() Info { return m.info }

// TextResponse builds a terminal response.
func TextResponse(text string) *Response {
	return &Response{ID: core.NewID(), FinishReason: FinishStop, Content: text}
}

// CallResponse builds a capability call response with JSON arguments.
func CallResponse(name, arguments string) *Response {
	return &Response{
		ID:           core.NewID(),
		FinishReason: FinishToolCalls,
		Calls:        []core.CapabilityCall{{ID: core.NewID(), Name: name, Arguments: arguments}},
	}
}

// LastUserMessage returns the content of the last user message of req.
func LastUserMessage(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

// LastToolResult returns the content of the trailing tool message of req, if
// the request ends with one.
func LastToolResult(req Request) (string, bool) {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == core.RoleTool {
		return req.Messages[n-1].Content, true
	}
	return "", false
}

func cloneRequest(req Request) Request {
	out := Request{
		Messages: make([]core.Message, len(req.Messages)),
		Tools:    make([]ToolDefinition, len(req.Tools)),
	}
	copy(out.Messages, req.Messages)
	copy(out.Tools, req.Tools)
	return out
}
