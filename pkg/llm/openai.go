package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds construction parameters for an OpenAI chat model.
type OpenAIConfig struct {
	// APIKey may be empty, in which case the client relies on the
	// provider's default credential resolution.
	APIKey string

	// BaseURL overrides the API endpoint (OpenAI-compatible providers).
	BaseURL string

	Model       string
	Temperature float32
}

// OpenAIModel implements ChatModel over the OpenAI chat completions API.
// A model instance is immutable once constructed; BindTools returns a
// copy bound to the given tool set.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float32
	tools       []openai.Tool
}

// NewOpenAIModel creates a chat model bound to the configured model name.
func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIModel{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// ModelName returns the bound model identifier.
func (m *OpenAIModel) ModelName() string {
	return m.model
}

// BindTools returns a copy of the model that advertises the given tools
// to the API so the model can issue tool calls.
func (m *OpenAIModel) BindTools(tools []Tool) ChatModel {
	bound := *m
	bound.tools = make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		bound.tools = append(bound.tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  json.RawMessage(t.Parameters()),
			},
		})
	}
	return &bound
}

// Invoke sends the conversation and returns the first choice with its
// token usage.
func (m *OpenAIModel) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: m.temperature,
	}
	if len(m.tools) > 0 {
		req.Tools = m.tools
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0].Message
	msg := Message{
		Role:    RoleAssistant,
		Content: choice.Content,
	}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &Response{
		Message: msg,
		TokenUsage: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// toOpenAIMessages converts conversation turns to the wire format.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if msg.Role == RoleTool {
			converted.ToolCallID = msg.ToolCallID
			converted.Name = msg.Name
		}
		out = append(out, converted)
	}
	return out
}
