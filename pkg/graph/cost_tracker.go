package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/parleyhq/parley/pkg/llm"
)

// costTrackerNode prices the run's token usage and records elapsed time.
// It runs last on every non-rejected path, including runs that never
// reached the model.
func (g *Graph) costTrackerNode(_ context.Context, s *State) (*Update, error) {
	update := &Update{}

	if s.Usage != nil {
		usage := *s.Usage
		usage.CostUSD = llm.Cost(usage.Model, usage.InputTokens, usage.OutputTokens)
		update.Usage = &usage

		slog.Info("Run cost computed",
			"thread_id", s.ThreadID,
			"model", usage.Model,
			"total_tokens", usage.TotalTokens,
			"cost_usd", usage.CostUSD)
	}

	elapsed := 0
	if !s.StartTime.IsZero() {
		elapsed = int(math.Round(time.Since(s.StartTime).Seconds() * 1000))
	}
	update.ResponseTimeMS = intPtr(elapsed)

	return update, nil
}

// MetadataToolCall is the per-call slice of the persisted message metadata.
type MetadataToolCall struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MetadataTokens is the token block of the persisted message metadata.
type MetadataTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// MetadataGuardrail is the guardrail block of the persisted message metadata.
type MetadataGuardrail struct {
	Status          GuardrailStatus `json:"status"`
	ViolationsCount int             `json:"violations_count"`
}

// MessageMetadata is what gets stored alongside the assistant message.
type MessageMetadata struct {
	Model          string             `json:"model,omitempty"`
	Tokens         *MetadataTokens    `json:"tokens,omitempty"`
	CostUSD        float64            `json:"cost_usd"`
	ResponseTimeMS int                `json:"response_time_ms"`
	ToolCalls      []MetadataToolCall `json:"tool_calls,omitempty"`
	Guardrail      *MetadataGuardrail `json:"guardrail,omitempty"`
}

// AsMap converts the metadata to the generic map shape the message store
// persists.
func (m MessageMetadata) AsMap() map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// BuildMessageMetadata flattens the final state into the metadata record
// persisted with the assistant message.
func BuildMessageMetadata(s *State) MessageMetadata {
	meta := MessageMetadata{ResponseTimeMS: s.ResponseTimeMS}

	if s.Usage != nil {
		meta.Model = s.Usage.Model
		meta.Tokens = &MetadataTokens{
			Input:  s.Usage.InputTokens,
			Output: s.Usage.OutputTokens,
			Total:  s.Usage.TotalTokens,
		}
		meta.CostUSD = s.Usage.CostUSD
	}

	for _, tc := range s.ToolCallsLog {
		meta.ToolCalls = append(meta.ToolCalls, MetadataToolCall{Name: tc.Name, Status: tc.Status})
	}

	if s.Guardrail != nil {
		meta.Guardrail = &MetadataGuardrail{
			Status:          s.Guardrail.Status,
			ViolationsCount: len(s.Guardrail.Violations),
		}
	}

	return meta
}
