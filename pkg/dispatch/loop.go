package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/runtime"
)

// Runtime is the slice of the runtime service the loop consumes.
type Runtime interface {
	Stream(ctx context.Context, threadID, tenantID uuid.UUID, userMessages []string) (<-chan runtime.Event, <-chan error)
}

// Store is the slice of the data layer the loop consumes.
type Store interface {
	EnsureAgentInThread(ctx context.Context, threadID, agentID uuid.UUID) error
	CreateMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
}

// Dispatcher runs the per-thread dispatch loops.
type Dispatcher struct {
	manager *Manager
	runtime Runtime
	store   Store
}

// NewDispatcher creates a dispatcher over the given manager, runtime and
// store.
func NewDispatcher(manager *Manager, rt Runtime, store Store) *Dispatcher {
	return &Dispatcher{manager: manager, runtime: rt, store: store}
}

// Run is the dispatch loop for one thread. It is started in its own
// goroutine by the caller whose Enqueue returned StatusProcessing and
// keeps going while messages arrive, draining and coalescing the queue at
// the top of every iteration. The loop is the sole writer of assistant
// messages for the thread.
//
// The loop is detached from any request: a subscriber disconnecting does
// not cancel it, and every run persists its assistant message. Whatever
// happens, subscribers receive a final stream_end.
func (d *Dispatcher) Run(threadID, tenantID, systemAgentID uuid.UUID) {
	ctx := context.Background()
	defer d.manager.Broadcast(threadID, runtime.Event{Type: runtime.EventStreamEnd})

	for {
		msgs := d.manager.DrainAndMerge(threadID)
		if len(msgs) == 0 {
			break
		}

		slog.Info("Dispatching messages",
			"thread_id", threadID,
			"count", len(msgs))

		collected := ""
		var metadata map[string]any

		events, errCh := d.runtime.Stream(ctx, threadID, tenantID, msgs)
		for ev := range events {
			d.manager.Broadcast(threadID, ev)
			switch ev.Type {
			case runtime.EventChunk:
				collected += ev.Content
			case runtime.EventGuardrailReject:
				collected = ev.Reason
			case runtime.EventDone:
				if ev.Metadata != nil {
					metadata = ev.Metadata.AsMap()
				}
			}
		}
		if err := <-errCh; err != nil {
			slog.Error("Pipeline run failed",
				"thread_id", threadID,
				"error", err)
		}

		if err := d.store.EnsureAgentInThread(ctx, threadID, systemAgentID); err != nil {
			slog.Error("Failed to add system agent to thread",
				"thread_id", threadID,
				"agent_id", systemAgentID,
				"error", err)
		}

		content := collected
		if content == "" {
			content = "(no response)"
		}
		_, err := d.store.CreateMessage(ctx, models.CreateMessageRequest{
			ThreadID: threadID,
			AgentID:  systemAgentID,
			Role:     models.MessageRoleAssistant,
			Content:  content,
			Metadata: metadata,
		})
		if err != nil {
			slog.Error("Failed to persist assistant message",
				"thread_id", threadID,
				"error", err)
		}

		if !d.manager.MarkDone(threadID) {
			break
		}
	}
}
