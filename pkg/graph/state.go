// Package graph implements the agent processing pipeline: a small directed
// graph of nodes (input_guard, memory_loader, llm_agent, tools,
// cost_tracker, reject) over an explicitly reduced state record.
package graph

import (
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/guardrail"
	"github.com/parleyhq/parley/pkg/llm"
)

// GuardrailStatus is the outcome classification of the input guard.
type GuardrailStatus string

const (
	GuardrailStatusClean    GuardrailStatus = "clean"
	GuardrailStatusMasked   GuardrailStatus = "masked"
	GuardrailStatusRejected GuardrailStatus = "rejected"
)

// GuardrailResult records what the input guard decided for one run.
type GuardrailResult struct {
	Status GuardrailStatus `json:"status"`

	// ProcessedContent is the masked input; nil when the run was rejected.
	ProcessedContent *string `json:"processed_content"`

	Violations      []guardrail.Match `json:"violations"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

// ToolCallRecord is one entry of the tool calls log.
type ToolCallRecord struct {
	Name    string `json:"name"`
	Args    string `json:"args"`
	StartMS int64  `json:"start_ms"`
	Status  string `json:"status"`
}

// TokenUsage aggregates the token accounting for one run.
type TokenUsage struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// State is the record that flows through the graph. It lives for a single
// pipeline invocation; nodes never mutate it directly but return Update
// partials that the reducer applies.
type State struct {
	ThreadID uuid.UUID `json:"thread_id"`
	TenantID uuid.UUID `json:"tenant_id"`

	// RawUserMessages are the drained user texts for this run, in
	// enqueue order.
	RawUserMessages []string `json:"raw_user_messages"`

	// History holds the prior conversation turns loaded from the store.
	// It is set once in the initial state; memory_loader consumes it to
	// build the fresh Messages list for the model.
	History []llm.Message `json:"history"`

	ProcessedInput string           `json:"processed_input"`
	Guardrail      *GuardrailResult `json:"guardrail_result"`

	// Messages is the conversation sent to the model. Append-merged:
	// node updates add entries, they never replace the list.
	Messages []llm.Message `json:"messages"`

	// ToolCallsLog is append-merged like Messages.
	ToolCallsLog []ToolCallRecord `json:"tool_calls_log"`

	Usage          *TokenUsage `json:"usage"`
	ResponseTimeMS int         `json:"response_time_ms"`
	FinalContent   string      `json:"final_content"`

	// StartTime is captured by input_guard from the monotonic clock.
	StartTime time.Time `json:"start_time"`
}

// Update is a partial state emitted by a node. Messages and ToolCallsLog
// are appended; every other non-nil field replaces the current value.
type Update struct {
	Messages     []llm.Message
	ToolCallsLog []ToolCallRecord

	Guardrail      *GuardrailResult
	ProcessedInput *string
	Usage          *TokenUsage
	FinalContent   *string
	ResponseTimeMS *int
	StartTime      *time.Time
}

// apply merges an update into the state.
func (s *State) apply(u *Update) {
	if u == nil {
		return
	}
	s.Messages = append(s.Messages, u.Messages...)
	s.ToolCallsLog = append(s.ToolCallsLog, u.ToolCallsLog...)

	if u.Guardrail != nil {
		s.Guardrail = u.Guardrail
	}
	if u.ProcessedInput != nil {
		s.ProcessedInput = *u.ProcessedInput
	}
	if u.Usage != nil {
		s.Usage = u.Usage
	}
	if u.FinalContent != nil {
		s.FinalContent = *u.FinalContent
	}
	if u.ResponseTimeMS != nil {
		s.ResponseTimeMS = *u.ResponseTimeMS
	}
	if u.StartTime != nil {
		s.StartTime = *u.StartTime
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
