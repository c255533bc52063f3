package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parleyhq/parley/pkg/llm"
)

// Node names, used for routing, checkpoints and stream events.
const (
	NodeInputGuard   = "input_guard"
	NodeMemoryLoader = "memory_loader"
	NodeLLMAgent     = "llm_agent"
	NodeTools        = "tools"
	NodeCostTracker  = "cost_tracker"
	NodeReject       = "reject"
)

// nodeEnd is the router sentinel for run completion.
const nodeEnd = ""

var (
	errNoSummaryModel = errors.New("graph: no summary model configured")
	errUnknownNode    = errors.New("graph: unknown node")
)

// Config assembles a processing graph.
type Config struct {
	// Model handles the main conversation turns. Required.
	Model llm.ChatModel

	// SummaryModel condenses history that falls out of the context
	// budget. Optional; without it trimming drops old turns silently.
	SummaryModel llm.ChatModel

	Tools []llm.Tool

	// SystemPrompt defaults to DefaultSystemPrompt when empty.
	SystemPrompt string

	// MaxContextUnits defaults to DefaultMaxContextUnits when zero.
	MaxContextUnits int

	// Checkpoints receives a state snapshot after every node. Optional.
	Checkpoints CheckpointStore
}

// NodeFunc is a single pipeline step. It receives the current state and
// returns a partial update for the reducer.
type NodeFunc func(ctx context.Context, s *State) (*Update, error)

// Graph is a compiled agent pipeline. Safe for concurrent use; per-run
// state lives entirely in the State passed through Run.
type Graph struct {
	cfg   Config
	tools map[string]llm.Tool
	nodes map[string]NodeFunc
}

// New validates the config and compiles the pipeline.
func New(cfg Config) (*Graph, error) {
	if cfg.Model == nil {
		return nil, errors.New("graph: model is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxContextUnits == 0 {
		cfg.MaxContextUnits = DefaultMaxContextUnits
	}

	g := &Graph{
		cfg:   cfg,
		tools: make(map[string]llm.Tool, len(cfg.Tools)),
	}
	for _, t := range cfg.Tools {
		g.tools[t.Name()] = t
	}

	if len(g.tools) > 0 {
		if binder, ok := cfg.Model.(llm.ToolBinder); ok {
			g.cfg.Model = binder.BindTools(cfg.Tools)
		}
	}

	g.nodes = map[string]NodeFunc{
		NodeInputGuard:   g.inputGuardNode,
		NodeMemoryLoader: g.memoryLoaderNode,
		NodeLLMAgent:     g.llmAgentNode,
		NodeTools:        g.toolsNode,
		NodeCostTracker:  g.costTrackerNode,
		NodeReject:       g.rejectNode,
	}
	return g, nil
}

// guardRouter decides where the run goes after the input guard.
func guardRouter(s *State) string {
	if s.Guardrail != nil && s.Guardrail.Status == GuardrailStatusRejected {
		return NodeReject
	}
	return NodeMemoryLoader
}

// continueRouter decides whether the model wants tools or is done.
func continueRouter(s *State) string {
	if len(s.Messages) > 0 {
		last := s.Messages[len(s.Messages)-1]
		if last.Role == llm.RoleAssistant && len(last.ToolCalls) > 0 {
			return NodeTools
		}
	}
	return NodeCostTracker
}

// next returns the node following the one that just ran.
func next(node string, s *State) string {
	switch node {
	case NodeInputGuard:
		return guardRouter(s)
	case NodeMemoryLoader:
		return NodeLLMAgent
	case NodeLLMAgent:
		return continueRouter(s)
	case NodeTools:
		return NodeLLMAgent
	case NodeCostTracker, NodeReject:
		return nodeEnd
	default:
		return nodeEnd
	}
}

// NodeEvent is emitted after each node completes during a streamed run.
// State is a snapshot taken at emission time.
type NodeEvent struct {
	Node  string
	State State
}

// Invoke runs the pipeline to completion and returns the final state.
func (g *Graph) Invoke(ctx context.Context, initial State) (*State, error) {
	return g.run(ctx, initial, nil)
}

// Stream runs the pipeline in a goroutine and emits a NodeEvent after
// each node. The channel is closed when the run finishes; a run error
// is delivered through errCh (buffered, at most one).
func (g *Graph) Stream(ctx context.Context, initial State) (<-chan NodeEvent, <-chan error) {
	events := make(chan NodeEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		_, err := g.run(ctx, initial, func(node string, s *State) {
			select {
			case events <- NodeEvent{Node: node, State: *s}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

func (g *Graph) run(ctx context.Context, initial State, emit func(node string, s *State)) (*State, error) {
	state := initial
	node := NodeInputGuard

	for node != nodeEnd {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fn, ok := g.nodes[node]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownNode, node)
		}

		update, err := fn(ctx, &state)
		if err != nil {
			return nil, fmt.Errorf("graph: node %s: %w", node, err)
		}
		state.apply(update)

		if g.cfg.Checkpoints != nil {
			if err := g.cfg.Checkpoints.Put(ctx, state.ThreadID, node, &state); err != nil {
				slog.Error("Failed to save checkpoint",
					"thread_id", state.ThreadID,
					"node", node,
					"error", err)
			}
		}

		if emit != nil {
			emit(node, &state)
		}

		node = next(node, &state)
	}

	return &state, nil
}
