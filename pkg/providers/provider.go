package providers

import (
	"context"
)

// Turn is one role-tagged unit in a conversation. Reasoning carries the
// model-specific side-channel payload (e.g. DeepSeek reasoning_content) and
// must be echoed back verbatim when the turn is replayed.
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Reasoning  string     `json:"reasoning_content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Images     []string   `json:"images,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition is one entry of the tool schema catalogue handed to the
// model, in OpenAI function-calling format.
type ToolDefinition map[string]interface{}

// LLMResponse is the model's answer to one chat call.
type LLMResponse struct {
	Content   string           `json:"content,omitempty"`
	Reasoning string           `json:"reasoning_content,omitempty"`
	ToolCalls []ToolCall       `json:"tool_calls,omitempty"`
	Usage     map[string]int64 `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response requests tool execution.
func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// LLMProvider is the inference capability. Implementations return an error
// only for transport or API failures; the caller degrades by rendering the
// error as text rather than retrying internally.
type LLMProvider interface {
	Chat(ctx context.Context, turns []Turn, tools []ToolDefinition, model string) (*LLMResponse, error)
	GetDefaultModel() string
}
