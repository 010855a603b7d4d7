package core

import "github.com/google/uuid"

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// CapabilityCall is a model request to invoke a named capability. Arguments
// holds the raw JSON object text produced by the model.
type CapabilityCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one conversation record. Messages are values; constructors copy
// the call record so a message stored in a history never changes afterwards.
//
// An assistant message with a non-nil Call records a capability request. A
// tool message carries the capability result in Content and the originating
// call (for its ID and name) in Call.
type Message struct {
	Role    Role            `json:"role"`
	Content string          `json:"content"`
	Call    *CapabilityCall `json:"call,omitempty"`
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a plain assistant answer.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CallMessage records that the assistant requested call.
func CallMessage(call CapabilityCall) Message {
	c := call
	return Message{Role: RoleAssistant, Call: &c}
}

// ToolResultMessage records the result of call.
func ToolResultMessage(call CapabilityCall, result string) Message {
	c := call
	return Message{Role: RoleTool, Content: result, Call: &c}
}

// IsCall reports whether m is an assistant capability request.
func (m Message) IsCall() bool {
	return m.Role == RoleAssistant && m.Call != nil
}

// NewID generates a new unique identifier for sessions and calls.
func NewID() string { return uuid.NewString() }
