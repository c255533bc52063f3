package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/runtime"
)

func TestEnqueue_FirstCallerStartsProcessing(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	first := m.Enqueue(threadID, QueuedMessage{MessageID: uuid.New(), Content: "a"})
	second := m.Enqueue(threadID, QueuedMessage{MessageID: uuid.New(), Content: "b"})

	assert.Equal(t, StatusProcessing, first)
	assert.Equal(t, StatusQueued, second)
}

func TestEnqueue_ExactlyOneProcessingUnderContention(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	const n = 64
	results := make(chan EnqueueStatus, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Enqueue(threadID, QueuedMessage{MessageID: uuid.New(), Content: "x"})
		}()
	}
	wg.Wait()
	close(results)

	processing := 0
	for status := range results {
		if status == StatusProcessing {
			processing++
		}
	}
	assert.Equal(t, 1, processing)
	assert.Len(t, m.DrainAndMerge(threadID), n)
}

func TestDrainAndMerge_PreservesEnqueueOrder(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	m.Enqueue(threadID, QueuedMessage{MessageID: uuid.New(), Content: "first"})
	m.Enqueue(threadID, QueuedMessage{MessageID: uuid.New(), Content: "second"})
	m.Enqueue(threadID, QueuedMessage{MessageID: uuid.New(), Content: "third"})

	assert.Equal(t, []string{"first", "second", "third"}, m.DrainAndMerge(threadID))
	assert.Empty(t, m.DrainAndMerge(threadID))
}

func TestMarkDone_ContinuesWhenMessagesArrived(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	require.Equal(t, StatusProcessing, m.Enqueue(threadID, QueuedMessage{Content: "a"}))
	m.DrainAndMerge(threadID)

	// Message arrives mid-run: the same loop must pick it up.
	require.Equal(t, StatusQueued, m.Enqueue(threadID, QueuedMessage{Content: "b"}))
	assert.True(t, m.MarkDone(threadID))

	m.DrainAndMerge(threadID)
	assert.False(t, m.MarkDone(threadID))

	// Flag released: the next enqueue starts a new loop.
	assert.Equal(t, StatusProcessing, m.Enqueue(threadID, QueuedMessage{Content: "c"}))
}

func TestBroadcast_DeliversInOrderToAllSubscribers(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	ch1, cancel1 := m.Subscribe(threadID)
	ch2, cancel2 := m.Subscribe(threadID)
	defer cancel1()
	defer cancel2()

	m.Broadcast(threadID, runtime.Event{Type: runtime.EventChunk, Content: "one"})
	m.Broadcast(threadID, runtime.Event{Type: runtime.EventChunk, Content: "two"})
	m.Broadcast(threadID, runtime.Event{Type: runtime.EventStreamEnd})

	for _, ch := range []<-chan runtime.Event{ch1, ch2} {
		assert.Equal(t, "one", (<-ch).Content)
		assert.Equal(t, "two", (<-ch).Content)
		assert.Equal(t, runtime.EventStreamEnd, (<-ch).Type)
	}
}

func TestBroadcast_CancelledSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	_, cancel := m.Subscribe(threadID)
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// More events than the subscriber buffer holds.
		for i := 0; i < subscriberBuffer*2; i++ {
			m.Broadcast(threadID, runtime.Event{Type: runtime.EventChunk, Content: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a cancelled subscriber")
	}
}

func TestBroadcast_SlowSubscriberBlocksUntilCancel(t *testing.T) {
	m := NewManager()
	threadID := uuid.New()

	_, cancel := m.Subscribe(threadID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+1; i++ {
			m.Broadcast(threadID, runtime.Event{Type: runtime.EventChunk})
		}
	}()

	// The unread buffer fills and the last send blocks; cancelling the
	// subscriber releases the broadcaster.
	select {
	case <-done:
		t.Fatal("broadcast should have blocked on the full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast still blocked after cancel")
	}
}

func TestCleanup_RemovesOnlyIdleThreads(t *testing.T) {
	m := NewManager()
	busy := uuid.New()
	idle := uuid.New()

	m.Enqueue(busy, QueuedMessage{Content: "pending"})
	m.state(idle)

	m.Cleanup(busy)
	m.Cleanup(idle)

	m.mu.Lock()
	_, busyKept := m.threads[busy]
	_, idleKept := m.threads[idle]
	m.mu.Unlock()

	assert.True(t, busyKept)
	assert.False(t, idleKept)
}
