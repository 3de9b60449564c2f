package domain

// ToolKind tells whether a capability runs in-process or behind a remote provider.
type ToolKind string

const (
	ToolKindLocal  ToolKind = "local"
	ToolKindRemote ToolKind = "remote"
)

// ToolDescriptor defines metadata about a tool available to the model.
// Parameters holds a JSON-schema object describing the arguments.
// Descriptors are immutable once registered.
type ToolDescriptor struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
	Kind        ToolKind       `json:"kind" yaml:"kind" mapstructure:"kind"`
	Provider    string         `json:"provider,omitempty" yaml:"provider,omitempty" mapstructure:"provider"` // Remote only
}

// ToolCall represents a request from the model to perform a side-effect.
type ToolCall struct {
	ID        string         `json:"id"`   // Correlation id echoed on the result
	Name      string         `json:"name"` // Function name to call
	Arguments map[string]any `json:"arguments,omitempty"`
	// RawArguments keeps the argument text the model produced when it could not be decoded.
	RawArguments string `json:"raw_arguments,omitempty"`
}

// Malformed reports whether the model produced arguments that could not be decoded.
func (c ToolCall) Malformed() bool {
	return c.Arguments == nil && c.RawArguments != ""
}

// ToolResult is the outcome of a tool invocation.
// It is always produced, even on failure.
type ToolResult struct {
	ID     string `json:"id"` // Must match the ToolCall.ID
	OK     bool   `json:"ok"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
	Denied bool   `json:"denied,omitempty"` // Rejected by policy, never executed
}

// Success builds a successful result.
func Success(id, text string) ToolResult {
	return ToolResult{ID: id, OK: true, Text: text}
}

// Failure builds a failed result.
func Failure(id, msg string) ToolResult {
	return ToolResult{ID: id, OK: false, Error: msg}
}

// Summary returns the text shown for the result: the output, or the error message.
func (r ToolResult) Summary() string {
	if r.OK {
		return r.Text
	}
	return r.Error
}
