package testutil

import (
	"fmt"

	"github.com/jcqin2022/AIAssistant/core"
)

// ConversationBuilder builds ordered message lists for history tests.
// Example:
//
//	msgs := NewConversationBuilder().User("2+2?").Call("add", `{"a":2,"b":2}`).ToolResult("4").Assistant("4").Build()
//
// ToolResult answers the most recent Call.
type ConversationBuilder struct {
	msgs  []core.Message
	last  core.CapabilityCall
	calls int
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// User appends a user message (chainable).
func (b *ConversationBuilder) User(t string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.UserMessage(t))
	return b
}

// Assistant appends an assistant answer (chainable).
func (b *ConversationBuilder) Assistant(t string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.AssistantMessage(t))
	return b
}

// Call appends a capability request with a deterministic id (chainable).
func (b *ConversationBuilder) Call(name, args string) *ConversationBuilder {
	b.calls++
	b.last = core.CapabilityCall{ID: fmt.Sprintf("call_%d", b.calls), Name: name, Arguments: args}
	b.msgs = append(b.msgs, core.CallMessage(b.last))
	return b
}

// ToolResult appends the result of the most recent Call (chainable).
func (b *ConversationBuilder) ToolResult(result string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.ToolResultMessage(b.last, result))
	return b
}

// Build returns a copy of the messages.
func (b *ConversationBuilder) Build() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}
