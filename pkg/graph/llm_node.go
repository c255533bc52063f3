package graph

import (
	"context"
	"time"

	"github.com/parleyhq/parley/pkg/llm"
)

// llmAgentNode invokes the bound chat model on the current messages.
//
// A response carrying tool calls is logged as pending and leaves
// FinalContent empty (the continue router sends the run to the tools
// node). A plain text response becomes the run's final content.
func (g *Graph) llmAgentNode(ctx context.Context, s *State) (*Update, error) {
	if len(s.Messages) == 0 {
		return &Update{FinalContent: strPtr("")}, nil
	}

	resp, err := g.cfg.Model.Invoke(ctx, s.Messages)
	if err != nil {
		return nil, err
	}

	update := &Update{
		Messages: []llm.Message{resp.Message},
		Usage:    extractUsage(resp, g.cfg.Model.ModelName()),
	}

	if len(resp.Message.ToolCalls) > 0 {
		now := time.Now().UnixMilli()
		for _, tc := range resp.Message.ToolCalls {
			update.ToolCallsLog = append(update.ToolCallsLog, ToolCallRecord{
				Name:    tc.Name,
				Args:    tc.Arguments,
				StartMS: now,
				Status:  "pending",
			})
		}
		update.FinalContent = strPtr("")
	} else {
		update.FinalContent = strPtr(resp.Message.Content)
	}

	return update, nil
}

// extractUsage reads token counts from a response, preferring the
// structured usage record and falling back to the provider token block.
func extractUsage(resp *llm.Response, model string) *TokenUsage {
	usage := &TokenUsage{Model: model}
	switch {
	case resp.Usage != nil:
		usage.InputTokens = resp.Usage.InputTokens
		usage.OutputTokens = resp.Usage.OutputTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	case resp.TokenUsage != nil:
		usage.InputTokens = resp.TokenUsage.PromptTokens
		usage.OutputTokens = resp.TokenUsage.CompletionTokens
		usage.TotalTokens = resp.TokenUsage.TotalTokens
	}
	return usage
}
