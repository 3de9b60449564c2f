package domain

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one element of a conversation with the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // Assistant only
	ToolCallID string     `json:"tool_call_id,omitempty"` // Tool only
	Name       string     `json:"name,omitempty"`         // Tool name, tool only
}

// ChatRequest is what the agent sends to the model.
// An empty Tools slice means the model may not call tools.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDescriptor
}

// ChatResponse is the model reply: either text, tool calls, or both.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}
