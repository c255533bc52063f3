package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/parleyhq/parley/pkg/llm"
)

// toolsNode executes every tool call requested by the last assistant
// message and appends one tool result message per call. Execution
// semantics belong to the tool implementations; this node is only the
// invocation harness. The graph loops back to llm_agent afterwards.
func (g *Graph) toolsNode(ctx context.Context, s *State) (*Update, error) {
	if len(s.Messages) == 0 {
		return &Update{}, nil
	}
	last := s.Messages[len(s.Messages)-1]

	update := &Update{}
	for _, tc := range last.ToolCalls {
		content := g.executeTool(ctx, tc)
		update.Messages = append(update.Messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: tc.ID,
			Name:       tc.Name,
		})
	}
	return update, nil
}

// executeTool runs a single tool call. Failures are reported back to the
// model as the tool result rather than aborting the run.
func (g *Graph) executeTool(ctx context.Context, tc llm.ToolCall) string {
	tool, ok := g.tools[tc.Name]
	if !ok {
		slog.Warn("Model requested unknown tool", "tool", tc.Name)
		return fmt.Sprintf("Error: unknown tool %q", tc.Name)
	}

	result, err := tool.Execute(ctx, json.RawMessage(tc.Arguments))
	if err != nil {
		slog.Warn("Tool execution failed", "tool", tc.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}
