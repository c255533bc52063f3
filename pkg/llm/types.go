// Package llm defines the chat model abstraction the agent graph runs
// against, plus the OpenAI-backed implementation and per-model pricing.
package llm

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Usage is the structured token usage record attached to a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TokenUsage is the provider-level token usage block some responses carry
// instead of a structured Usage record (prompt/completion naming).
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of one chat model invocation.
type Response struct {
	Message Message

	// Usage is the structured usage record; preferred when present.
	Usage *Usage

	// TokenUsage is the raw provider token block; used as a fallback
	// when Usage is absent.
	TokenUsage *TokenUsage
}

// ChatModel is the narrow interface the graph invokes. Implementations
// are bound to a concrete model (and optionally tools) at construction.
type ChatModel interface {
	// ModelName returns the bound model identifier (for usage records).
	ModelName() string

	// Invoke sends the conversation and returns the model's response.
	Invoke(ctx context.Context, messages []Message) (*Response, error)
}

// ToolBinder is implemented by chat models that can advertise tools to
// the provider. Binding returns a new model; the receiver is unchanged.
type ToolBinder interface {
	BindTools(tools []Tool) ChatModel
}

// Tool is an executable capability the model may call. The graph's tool
// node is only the invocation harness; execution semantics live in the
// implementation.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns the JSON schema for the tool's arguments.
	Parameters() json.RawMessage

	// Execute runs the tool with raw JSON arguments and returns the
	// result text to feed back to the model.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}
