package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/guardrail"
	"github.com/parleyhq/parley/pkg/llm"
)

// fakeModel replays a scripted sequence of responses and records every
// message list it was invoked with.
type fakeModel struct {
	name      string
	responses []*llm.Response
	calls     [][]llm.Message
	err       error
}

func (m *fakeModel) ModelName() string { return m.name }

func (m *fakeModel) Invoke(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("fake model: no scripted response for call %d", len(m.calls))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func textResponse(content string, in, out int) *llm.Response {
	return &llm.Response{
		Message: llm.Message{Role: llm.RoleAssistant, Content: content},
		Usage:   &llm.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

type fakeTool struct {
	name   string
	result string
	err    error
	calls  []json.RawMessage
}

func (t *fakeTool) Name() string                { return t.name }
func (t *fakeTool) Description() string         { return "test tool" }
func (t *fakeTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (t *fakeTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	t.calls = append(t.calls, args)
	return t.result, t.err
}

func newTestState(raw ...string) State {
	return State{
		ThreadID:        uuid.New(),
		TenantID:        uuid.New(),
		RawUserMessages: raw,
	}
}

func TestInvoke_CleanRun(t *testing.T) {
	model := &fakeModel{
		name:      "gpt-4o-mini",
		responses: []*llm.Response{textResponse("Hello there!", 100, 20)},
	}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), newTestState("Hi"))
	require.NoError(t, err)

	assert.Equal(t, "Hello there!", final.FinalContent)
	require.NotNil(t, final.Guardrail)
	assert.Equal(t, GuardrailStatusClean, final.Guardrail.Status)

	require.NotNil(t, final.Usage)
	assert.Equal(t, "gpt-4o-mini", final.Usage.Model)
	assert.Equal(t, 120, final.Usage.TotalTokens)
	assert.InDelta(t, 0.000027, final.Usage.CostUSD, 1e-9)
	assert.GreaterOrEqual(t, final.ResponseTimeMS, 0)

	// Model input: system prompt then the user turn.
	require.Len(t, model.calls, 1)
	require.Len(t, model.calls[0], 2)
	assert.Equal(t, llm.RoleSystem, model.calls[0][0].Role)
	assert.Equal(t, DefaultSystemPrompt, model.calls[0][0].Content)
	assert.Equal(t, llm.RoleUser, model.calls[0][1].Role)
	assert.Equal(t, "Hi", model.calls[0][1].Content)
}

func TestInvoke_MasksLowSeverityPII(t *testing.T) {
	model := &fakeModel{
		name:      "gpt-4o-mini",
		responses: []*llm.Response{textResponse("Noted.", 10, 2)},
	}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), newTestState("Contact me at bob@example.com please"))
	require.NoError(t, err)

	require.NotNil(t, final.Guardrail)
	assert.Equal(t, GuardrailStatusMasked, final.Guardrail.Status)
	assert.Equal(t, "Contact me at [EMAIL] please", final.ProcessedInput)

	// The model must never see the raw address.
	require.Len(t, model.calls, 1)
	for _, msg := range model.calls[0] {
		assert.NotContains(t, msg.Content, "bob@example.com")
	}
}

func TestInvoke_RejectsCriticalPII(t *testing.T) {
	model := &fakeModel{name: "gpt-4o-mini"}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), newTestState("My SSN is 123-45-6789"))
	require.NoError(t, err)

	require.NotNil(t, final.Guardrail)
	assert.Equal(t, GuardrailStatusRejected, final.Guardrail.Status)
	assert.Nil(t, final.Guardrail.ProcessedContent)
	assert.True(t, strings.HasPrefix(final.FinalContent, "Message rejected: "))
	assert.Contains(t, final.FinalContent, "ssn")

	// Rejection short-circuits: no model call, no usage, no cost.
	assert.Empty(t, model.calls)
	assert.Nil(t, final.Usage)
	assert.Zero(t, final.ResponseTimeMS)
}

func TestInvoke_ToolLoop(t *testing.T) {
	tool := &fakeTool{name: "lookup", result: "42 items in stock"}
	model := &fakeModel{
		name: "gpt-4o",
		responses: []*llm.Response{
			{
				Message: llm.Message{
					Role: llm.RoleAssistant,
					ToolCalls: []llm.ToolCall{
						{ID: "call_1", Name: "lookup", Arguments: `{"sku":"A-7"}`},
					},
				},
				Usage: &llm.Usage{InputTokens: 50, OutputTokens: 10, TotalTokens: 60},
			},
			textResponse("There are 42 items in stock.", 80, 15),
		},
	}
	g, err := New(Config{Model: model, Tools: []llm.Tool{tool}})
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), newTestState("How many A-7 in stock?"))
	require.NoError(t, err)

	assert.Equal(t, "There are 42 items in stock.", final.FinalContent)
	require.Len(t, tool.calls, 1)
	assert.JSONEq(t, `{"sku":"A-7"}`, string(tool.calls[0]))

	require.Len(t, final.ToolCallsLog, 1)
	assert.Equal(t, "lookup", final.ToolCallsLog[0].Name)
	assert.Equal(t, "pending", final.ToolCallsLog[0].Status)
	assert.Positive(t, final.ToolCallsLog[0].StartMS)

	// Second invocation carries the tool result turn.
	require.Len(t, model.calls, 2)
	second := model.calls[1]
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Equal(t, "42 items in stock", last.Content)

	// Usage reflects the last model call.
	require.NotNil(t, final.Usage)
	assert.Equal(t, 95, final.Usage.TotalTokens)
}

func TestInvoke_UnknownToolReportedToModel(t *testing.T) {
	model := &fakeModel{
		name: "gpt-4o",
		responses: []*llm.Response{
			{
				Message: llm.Message{
					Role: llm.RoleAssistant,
					ToolCalls: []llm.ToolCall{
						{ID: "call_1", Name: "missing", Arguments: `{}`},
					},
				},
			},
			textResponse("I could not look that up.", 5, 5),
		},
	}
	g, err := New(Config{Model: model, Tools: []llm.Tool{&fakeTool{name: "lookup"}}})
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), newTestState("hi"))
	require.NoError(t, err)

	assert.Equal(t, "I could not look that up.", final.FinalContent)
	second := model.calls[1]
	last := second[len(second)-1]
	assert.Contains(t, last.Content, `unknown tool "missing"`)
}

func TestInvoke_HistoryTrimmingAndSummary(t *testing.T) {
	history := make([]llm.Message, 0, 10)
	for i := 0; i < 5; i++ {
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("question %d", i)},
			llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
		)
	}

	summary := &fakeModel{
		name:      "gpt-4o-mini",
		responses: []*llm.Response{textResponse("They discussed questions 0 through 2.", 30, 10)},
	}
	model := &fakeModel{
		name:      "gpt-4o",
		responses: []*llm.Response{textResponse("Final.", 40, 5)},
	}

	g, err := New(Config{Model: model, SummaryModel: summary, MaxContextUnits: 4})
	require.NoError(t, err)

	state := newTestState("question 5")
	state.History = history
	final, err := g.Invoke(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "Final.", final.FinalContent)

	// Summary prompt is the dropped prefix plus the instruction.
	require.Len(t, summary.calls, 1)
	prompt := summary.calls[0]
	require.Len(t, prompt, 7)
	assert.Equal(t, "question 0", prompt[0].Content)
	assert.Contains(t, prompt[6].Content, "single concise summary")

	// Model input: system, summary, trimmed tail starting on a user turn,
	// then the new user message.
	require.Len(t, model.calls, 1)
	sent := model.calls[0]
	require.Len(t, sent, 7)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.True(t, strings.HasPrefix(sent[1].Content, "Summary of earlier conversation:\n"))
	assert.Equal(t, "question 3", sent[2].Content)
	assert.Equal(t, llm.RoleUser, sent[2].Role)
	assert.Equal(t, "question 5", sent[6].Content)
}

func TestInvoke_SummaryFailureFallsBackToTrimmedHistory(t *testing.T) {
	summary := &fakeModel{name: "gpt-4o-mini", err: errors.New("rate limited")}
	model := &fakeModel{
		name:      "gpt-4o",
		responses: []*llm.Response{textResponse("ok", 1, 1)},
	}
	g, err := New(Config{Model: model, SummaryModel: summary, MaxContextUnits: 2})
	require.NoError(t, err)

	state := newTestState("latest")
	state.History = []llm.Message{
		{Role: llm.RoleUser, Content: "old question"},
		{Role: llm.RoleAssistant, Content: "old answer"},
		{Role: llm.RoleUser, Content: "recent question"},
		{Role: llm.RoleAssistant, Content: "recent answer"},
	}
	final, err := g.Invoke(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "ok", final.FinalContent)

	sent := model.calls[0]
	for _, msg := range sent {
		assert.NotContains(t, msg.Content, "Summary of earlier conversation")
	}
	require.Len(t, sent, 4)
	assert.Equal(t, "recent question", sent[1].Content)
}

func TestInvoke_CoalescedMessagesJoined(t *testing.T) {
	model := &fakeModel{
		name:      "gpt-4o-mini",
		responses: []*llm.Response{textResponse("ok", 1, 1)},
	}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), newTestState("first", "second", "third"))
	require.NoError(t, err)

	assert.Equal(t, "first\nsecond\nthird", final.ProcessedInput)
}

func TestInvoke_ModelErrorPropagates(t *testing.T) {
	model := &fakeModel{name: "gpt-4o", err: errors.New("upstream 500")}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), newTestState("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_agent")
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestStream_EmitsNodeEvents(t *testing.T) {
	model := &fakeModel{
		name:      "gpt-4o-mini",
		responses: []*llm.Response{textResponse("streamed", 10, 5)},
	}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	events, errCh := g.Stream(context.Background(), newTestState("hi"))

	var nodes []string
	var last State
	for ev := range events {
		nodes = append(nodes, ev.Node)
		last = ev.State
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{NodeInputGuard, NodeMemoryLoader, NodeLLMAgent, NodeCostTracker}, nodes)
	assert.Equal(t, "streamed", last.FinalContent)
	require.NotNil(t, last.Usage)
	assert.Positive(t, last.Usage.CostUSD)
}

func TestStream_RejectedRun(t *testing.T) {
	model := &fakeModel{name: "gpt-4o-mini"}
	g, err := New(Config{Model: model})
	require.NoError(t, err)

	events, errCh := g.Stream(context.Background(), newTestState("token sk-abcdefghijklmnopqrstuvwxyz"))

	var nodes []string
	for ev := range events {
		nodes = append(nodes, ev.Node)
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{NodeInputGuard, NodeReject}, nodes)
	assert.Empty(t, model.calls)
}

func TestInvoke_SavesCheckpoints(t *testing.T) {
	store := NewMemoryCheckpointStore()
	model := &fakeModel{
		name:      "gpt-4o-mini",
		responses: []*llm.Response{textResponse("done", 1, 1)},
	}
	g, err := New(Config{Model: model, Checkpoints: store})
	require.NoError(t, err)

	state := newTestState("hi")
	final, err := g.Invoke(context.Background(), state)
	require.NoError(t, err)

	cp, err := store.Get(context.Background(), state.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, NodeCostTracker, cp.Node)
	assert.Equal(t, final.FinalContent, cp.State.FinalContent)

	_, err = store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestBuildMessageMetadata(t *testing.T) {
	s := &State{
		Usage: &TokenUsage{
			Model:        "gpt-4o",
			InputTokens:  100,
			OutputTokens: 50,
			TotalTokens:  150,
			CostUSD:      0.00075,
		},
		ResponseTimeMS: 1234,
		ToolCallsLog: []ToolCallRecord{
			{Name: "lookup", Status: "pending"},
		},
		Guardrail: &GuardrailResult{
			Status: GuardrailStatusMasked,
			Violations: []guardrail.Match{
				{Category: "email", Severity: guardrail.SeverityLow},
			},
		},
	}

	meta := BuildMessageMetadata(s)
	assert.Equal(t, "gpt-4o", meta.Model)
	require.NotNil(t, meta.Tokens)
	assert.Equal(t, 150, meta.Tokens.Total)
	assert.Equal(t, 0.00075, meta.CostUSD)
	assert.Equal(t, 1234, meta.ResponseTimeMS)
	require.Len(t, meta.ToolCalls, 1)
	assert.Equal(t, "lookup", meta.ToolCalls[0].Name)
	require.NotNil(t, meta.Guardrail)
	assert.Equal(t, GuardrailStatusMasked, meta.Guardrail.Status)
	assert.Equal(t, 1, meta.Guardrail.ViolationsCount)
}

func TestBuildMessageMetadata_RejectedRunHasNoUsage(t *testing.T) {
	s := &State{
		Guardrail: &GuardrailResult{Status: GuardrailStatusRejected},
	}

	meta := BuildMessageMetadata(s)
	assert.Empty(t, meta.Model)
	assert.Nil(t, meta.Tokens)
	assert.Zero(t, meta.CostUSD)
	require.NotNil(t, meta.Guardrail)
	assert.Equal(t, GuardrailStatusRejected, meta.Guardrail.Status)
}
