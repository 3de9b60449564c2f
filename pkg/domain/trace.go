package domain

// TraceEntry records one tool invocation of an agent run, in invocation order.
// It is written before execution and completed with the outcome afterwards.
type TraceEntry struct {
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments"`
	Description string         `json:"description"`
	Result      string         `json:"result,omitempty"`
	OK          bool           `json:"ok"`
}

// DeniedCall records a tool call the model emitted for a tool outside the allow-list.
// Denied calls are never executed and never appear in the trace.
type DeniedCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Reason    string         `json:"reason"`
}
