package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/graph"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/runtime"
)

// fakeRuntime emits a scripted event sequence per run and records the
// message batches it received.
type fakeRuntime struct {
	mu      sync.Mutex
	batches [][]string
	script  func(run int, msgs []string) []runtime.Event
	onRun   func(run int)
}

func (r *fakeRuntime) Stream(_ context.Context, _, _ uuid.UUID, msgs []string) (<-chan runtime.Event, <-chan error) {
	r.mu.Lock()
	r.batches = append(r.batches, msgs)
	run := len(r.batches)
	r.mu.Unlock()

	if r.onRun != nil {
		r.onRun(run)
	}

	events := make(chan runtime.Event)
	errCh := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errCh)
		for _, ev := range r.script(run, msgs) {
			events <- ev
		}
	}()
	return events, errCh
}

type recordingStore struct {
	mu       sync.Mutex
	messages []models.CreateMessageRequest
	ensured  []uuid.UUID
}

func (s *recordingStore) EnsureAgentInThread(_ context.Context, _, agentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, agentID)
	return nil
}

func (s *recordingStore) CreateMessage(_ context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, req)
	return &models.Message{ID: uuid.New(), Content: req.Content}, nil
}

func doneEvent(model string) runtime.Event {
	return runtime.Event{
		Type:     runtime.EventDone,
		Metadata: &graph.MessageMetadata{Model: model, ResponseTimeMS: 42},
	}
}

func TestRun_BroadcastsAndPersists(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()
	agentID := uuid.New()

	rt := &fakeRuntime{
		script: func(_ int, _ []string) []runtime.Event {
			return []runtime.Event{
				{Type: runtime.EventChunk, Content: "Hello "},
				{Type: runtime.EventChunk, Content: "world"},
				doneEvent("gpt-4o-mini"),
			}
		},
	}
	store := &recordingStore{}
	d := NewDispatcher(m, rt, store)

	require.Equal(t, StatusProcessing, m.Enqueue(threadID, QueuedMessage{Content: "hi"}))
	ch, cancel := m.Subscribe(threadID)
	defer cancel()

	go d.Run(threadID, uuid.New(), agentID)

	var types []runtime.EventType
	for ev := range ch {
		types = append(types, ev.Type)
		if ev.Type == runtime.EventStreamEnd {
			break
		}
	}
	assert.Equal(t, []runtime.EventType{
		runtime.EventChunk, runtime.EventChunk, runtime.EventDone, runtime.EventStreamEnd,
	}, types)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.messages, 1)
	assert.Equal(t, "Hello world", store.messages[0].Content)
	assert.Equal(t, models.MessageRoleAssistant, store.messages[0].Role)
	assert.Equal(t, agentID, store.messages[0].AgentID)
	assert.Equal(t, "gpt-4o-mini", store.messages[0].Metadata["model"])
	assert.Equal(t, []uuid.UUID{agentID}, store.ensured)
}

func TestRun_RejectionPersistsReason(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	rt := &fakeRuntime{
		script: func(_ int, _ []string) []runtime.Event {
			return []runtime.Event{
				{Type: runtime.EventGuardrailReject, Reason: "Message rejected: Detected critical sensitive data: ssn"},
			}
		},
	}
	store := &recordingStore{}
	d := NewDispatcher(m, rt, store)

	require.Equal(t, StatusProcessing, m.Enqueue(threadID, QueuedMessage{Content: "123-45-6789"}))
	d.Run(threadID, uuid.New(), uuid.New())

	require.Len(t, store.messages, 1)
	assert.Contains(t, store.messages[0].Content, "Message rejected")
	assert.Nil(t, store.messages[0].Metadata)
}

func TestRun_EmptyOutputFallsBack(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	rt := &fakeRuntime{
		script: func(_ int, _ []string) []runtime.Event {
			return []runtime.Event{doneEvent("gpt-4o-mini")}
		},
	}
	store := &recordingStore{}
	d := NewDispatcher(m, rt, store)

	m.Enqueue(threadID, QueuedMessage{Content: "hi"})
	d.Run(threadID, uuid.New(), uuid.New())

	require.Len(t, store.messages, 1)
	assert.Equal(t, "(no response)", store.messages[0].Content)
}

func TestRun_CoalescesMessagesArrivingMidRun(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	rt := &fakeRuntime{
		script: func(run int, _ []string) []runtime.Event {
			return []runtime.Event{
				{Type: runtime.EventChunk, Content: "reply"},
				doneEvent("gpt-4o-mini"),
			}
		},
	}
	// Two messages land while the first run is in flight; they must be
	// merged into a single second run.
	rt.onRun = func(run int) {
		if run == 1 {
			assert.Equal(t, StatusQueued, m.Enqueue(threadID, QueuedMessage{Content: "late one"}))
			assert.Equal(t, StatusQueued, m.Enqueue(threadID, QueuedMessage{Content: "late two"}))
		}
	}
	store := &recordingStore{}
	d := NewDispatcher(m, rt, store)

	require.Equal(t, StatusProcessing, m.Enqueue(threadID, QueuedMessage{Content: "original"}))
	d.Run(threadID, uuid.New(), uuid.New())

	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.Len(t, rt.batches, 2)
	assert.Equal(t, []string{"original"}, rt.batches[0])
	assert.Equal(t, []string{"late one", "late two"}, rt.batches[1])

	// One assistant message per run, flag released afterwards.
	assert.Len(t, store.messages, 2)
	assert.False(t, m.MarkDone(threadID))
	assert.Equal(t, StatusProcessing, m.Enqueue(threadID, QueuedMessage{Content: "next"}))
}

func TestRun_StreamEndIsAlwaysLast(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	rt := &fakeRuntime{
		script: func(_ int, _ []string) []runtime.Event {
			return []runtime.Event{
				{Type: runtime.EventChunk, Content: "a"},
				doneEvent("m"),
			}
		},
	}
	store := &recordingStore{}
	d := NewDispatcher(m, rt, store)

	m.Enqueue(threadID, QueuedMessage{Content: "hi"})
	ch, cancel := m.Subscribe(threadID)
	defer cancel()

	go d.Run(threadID, uuid.New(), uuid.New())

	deadline := time.After(5 * time.Second)
	var last runtime.EventType
	for {
		select {
		case ev := <-ch:
			last = ev.Type
			if ev.Type == runtime.EventStreamEnd {
				assert.Equal(t, runtime.EventStreamEnd, last)
				return
			}
		case <-deadline:
			t.Fatal("no stream_end received")
		}
	}
}
