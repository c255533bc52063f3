package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/pkg/models"
)

// ThreadService manages conversation threads and their agent memberships.
type ThreadService struct {
	pool *pgxpool.Pool
}

// NewThreadService creates a new ThreadService.
func NewThreadService(pool *pgxpool.Pool) *ThreadService {
	return &ThreadService{pool: pool}
}

// CreateThread creates a new thread for a tenant.
func (s *ThreadService) CreateThread(ctx context.Context, req models.CreateThreadRequest) (*models.Thread, error) {
	if req.TenantID == uuid.Nil {
		return nil, NewValidationError("tenant_id", "required")
	}

	raw, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	thread := &models.Thread{
		ID:       uuid.New(),
		TenantID: req.TenantID,
		Title:    req.Title,
		Metadata: req.Metadata,
	}
	if thread.Metadata == nil {
		thread.Metadata = map[string]any{}
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO threads (id, tenant_id, title, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		thread.ID, thread.TenantID, thread.Title, raw,
	).Scan(&thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// GetThread retrieves a thread by ID. Soft-deleted threads are not found.
func (s *ThreadService) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, metadata, created_at, updated_at
		FROM threads
		WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&thread.ID, &thread.TenantID, &thread.Title, &thread.Metadata,
		&thread.CreatedAt, &thread.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return thread, nil
}

// ListThreads retrieves the live threads of a tenant, newest first.
func (s *ThreadService) ListThreads(ctx context.Context, tenantID uuid.UUID) ([]*models.Thread, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, title, metadata, created_at, updated_at
		FROM threads
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread := &models.Thread{}
		err := rows.Scan(&thread.ID, &thread.TenantID, &thread.Title, &thread.Metadata,
			&thread.CreatedAt, &thread.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// DeleteThread soft-deletes a thread. Its messages remain in place.
func (s *ThreadService) DeleteThread(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE threads
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAgentInThread adds an agent to a thread's participants. Idempotent;
// at-most-once membership per agent.
func (s *ThreadService) EnsureAgentInThread(ctx context.Context, threadID, agentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO thread_agents (thread_id, agent_id)
		VALUES ($1, $2)
		ON CONFLICT (thread_id, agent_id) DO NOTHING`,
		threadID, agentID)
	if err != nil {
		return fmt.Errorf("failed to add agent to thread: %w", err)
	}
	return nil
}

// ListThreadAgents retrieves a thread's participants in join order.
func (s *ThreadService) ListThreadAgents(ctx context.Context, threadID uuid.UUID) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.tenant_id, a.first_name, a.last_name, a.email, a.nature,
			a.origin_type, a.origin_id, a.created_at, a.updated_at
		FROM thread_agents ta
		JOIN agents a ON a.id = ta.agent_id
		WHERE ta.thread_id = $1 AND a.deleted_at IS NULL
		ORDER BY ta.joined_at`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list thread agents: %w", err)
	}
	return agents, nil
}
