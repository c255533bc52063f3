package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoCheckpoint is returned when a thread has no saved checkpoint.
var ErrNoCheckpoint = errors.New("graph: no checkpoint for thread")

// Checkpoint is the last persisted state snapshot for a thread.
type Checkpoint struct {
	ThreadID  uuid.UUID `json:"thread_id"`
	Node      string    `json:"node"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointStore persists pipeline state between nodes so a crashed or
// inspected run can be resumed or examined.
type CheckpointStore interface {
	Put(ctx context.Context, threadID uuid.UUID, node string, state *State) error
	Get(ctx context.Context, threadID uuid.UUID) (*Checkpoint, error)
}

// PostgresCheckpointStore keeps one checkpoint row per thread, latest
// state only.
type PostgresCheckpointStore struct {
	pool *pgxpool.Pool
}

func NewPostgresCheckpointStore(pool *pgxpool.Pool) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{pool: pool}
}

func (s *PostgresCheckpointStore) Put(ctx context.Context, threadID uuid.UUID, node string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_checkpoints (thread_id, node, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (thread_id)
		DO UPDATE SET node = EXCLUDED.node, state = EXCLUDED.state, updated_at = now()`,
		threadID, node, raw)
	if err != nil {
		return fmt.Errorf("checkpoint: upsert: %w", err)
	}
	return nil
}

func (s *PostgresCheckpointStore) Get(ctx context.Context, threadID uuid.UUID) (*Checkpoint, error) {
	var (
		cp  Checkpoint
		raw []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT thread_id, node, state, updated_at
		FROM agent_checkpoints
		WHERE thread_id = $1`,
		threadID).Scan(&cp.ThreadID, &cp.Node, &raw, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: query: %w", err)
	}

	if err := json.Unmarshal(raw, &cp.State); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal state: %w", err)
	}
	return &cp, nil
}

// MemoryCheckpointStore is the in-process store used in tests and when
// the runtime is configured without a database.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[uuid.UUID]*Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: make(map[uuid.UUID]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Put(_ context.Context, threadID uuid.UUID, node string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[threadID] = &Checkpoint{
		ThreadID:  threadID,
		Node:      node,
		State:     *state,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *MemoryCheckpointStore) Get(_ context.Context, threadID uuid.UUID) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[threadID]
	if !ok {
		return nil, ErrNoCheckpoint
	}
	copied := *cp
	return &copied, nil
}
