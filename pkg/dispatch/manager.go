// Package dispatch serializes message processing per thread: a queue
// manager coalesces inbound user messages and a dispatch loop feeds them
// through the runtime, fanning events out to SSE subscribers.
package dispatch

import (
	"sync"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/runtime"
)

// EnqueueStatus tells the caller whether its message started a dispatch
// loop or joined an already-running one.
type EnqueueStatus string

const (
	// StatusProcessing means the caller must spawn the dispatch loop.
	StatusProcessing EnqueueStatus = "processing"

	// StatusQueued means a loop is already running and will pick the
	// message up.
	StatusQueued EnqueueStatus = "queued"
)

// QueuedMessage is one pending user message.
type QueuedMessage struct {
	MessageID uuid.UUID
	Content   string
}

// subscriberBuffer gives subscribers some slack before a slow consumer
// blocks the broadcaster.
const subscriberBuffer = 16

// subscriber pairs the delivery channel with a done signal so a blocked
// Broadcast unsticks when the subscriber leaves.
type subscriber struct {
	ch   chan runtime.Event
	done chan struct{}
}

// threadState is the in-memory per-thread queue, flag and subscriber list.
// Lives for process uptime; created lazily.
type threadState struct {
	mu          sync.Mutex
	queue       []QueuedMessage
	processing  bool
	subscribers []*subscriber
}

// Manager owns the per-thread dispatch state. All operations are safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	threads map[uuid.UUID]*threadState
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{threads: make(map[uuid.UUID]*threadState)}
}

// state returns the thread's state, creating it on first use. The manager
// lock is held only for the map access.
func (m *Manager) state(threadID uuid.UUID) *threadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.threads[threadID]
	if !ok {
		ts = &threadState{}
		m.threads[threadID] = ts
	}
	return ts
}

// Enqueue pushes a message onto the thread's queue. Exactly one of the
// concurrent callers observes the processing flag false and receives
// StatusProcessing; that caller must start the dispatch loop.
func (m *Manager) Enqueue(threadID uuid.UUID, msg QueuedMessage) EnqueueStatus {
	ts := m.state(threadID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.queue = append(ts.queue, msg)
	if ts.processing {
		return StatusQueued
	}
	ts.processing = true
	return StatusProcessing
}

// DrainAndMerge removes and returns the contents of every queued message,
// in enqueue order. Non-blocking; returns whatever is present at call time.
func (m *Manager) DrainAndMerge(threadID uuid.UUID) []string {
	ts := m.state(threadID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.queue) == 0 {
		return nil
	}
	contents := make([]string, len(ts.queue))
	for i, msg := range ts.queue {
		contents[i] = msg.Content
	}
	ts.queue = ts.queue[:0]
	return contents
}

// MarkDone decides whether the dispatch loop continues. If messages
// arrived during the run it returns true and keeps the processing flag;
// otherwise it clears the flag and returns false. This is the merging
// guarantee: a message that lands between the run's last event and
// MarkDone is handled by the same loop.
func (m *Manager) MarkDone(threadID uuid.UUID) bool {
	ts := m.state(threadID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.queue) > 0 {
		return true
	}
	ts.processing = false
	return false
}

// Broadcast delivers an event to every subscriber of the thread. Sends
// block once a subscriber's buffer fills; the dispatch loop is paced by
// its slowest consumer.
func (m *Manager) Broadcast(threadID uuid.UUID, ev runtime.Event) {
	ts := m.state(threadID)

	ts.mu.Lock()
	subs := make([]*subscriber, len(ts.subscribers))
	copy(subs, ts.subscribers)
	ts.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function that deregisters it. The caller reads until it sees a
// stream_end event (or gives up) and then must call cancel.
func (m *Manager) Subscribe(threadID uuid.UUID) (<-chan runtime.Event, func()) {
	ts := m.state(threadID)
	sub := &subscriber{
		ch:   make(chan runtime.Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	ts.mu.Lock()
	ts.subscribers = append(ts.subscribers, sub)
	ts.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ts.mu.Lock()
			for i, s := range ts.subscribers {
				if s == sub {
					ts.subscribers = append(ts.subscribers[:i], ts.subscribers[i+1:]...)
					break
				}
			}
			ts.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, cancel
}

// Cleanup removes the thread's state when it is idle. Best-effort; safe to
// never call.
func (m *Manager) Cleanup(threadID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.threads[threadID]
	if !ok {
		return
	}

	ts.mu.Lock()
	idle := len(ts.queue) == 0 && len(ts.subscribers) == 0 && !ts.processing
	ts.mu.Unlock()

	if idle {
		delete(m.threads, threadID)
	}
}
