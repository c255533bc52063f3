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

// AgentService manages conversation participants.
type AgentService struct {
	pool *pgxpool.Pool
}

// NewAgentService creates a new AgentService.
func NewAgentService(pool *pgxpool.Pool) *AgentService {
	return &AgentService{pool: pool}
}

const agentColumns = `id, tenant_id, first_name, last_name, email, nature,
	origin_type, origin_id, created_at, updated_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	err := row.Scan(
		&agent.ID, &agent.TenantID, &agent.FirstName, &agent.LastName,
		&agent.Email, &agent.Nature, &agent.OriginType, &agent.OriginID,
		&agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// CreateAgent creates a new agent. At most one live system agent may exist
// per tenant; a second create reports ErrAlreadyExists.
func (s *AgentService) CreateAgent(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error) {
	if req.FirstName == "" {
		return nil, NewValidationError("first_name", "required")
	}
	switch req.Nature {
	case models.AgentNatureHuman, models.AgentNatureSystem, models.AgentNatureWorker:
	default:
		return nil, NewValidationError("nature", "must be one of: human, system, worker")
	}
	if req.Nature == models.AgentNatureSystem && req.TenantID == nil {
		return nil, NewValidationError("tenant_id", "required for system agents")
	}

	agent := &models.Agent{
		ID:         uuid.New(),
		TenantID:   req.TenantID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Nature:     req.Nature,
		OriginType: req.OriginType,
		OriginID:   req.OriginID,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, tenant_id, first_name, last_name, email, nature, origin_type, origin_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		agent.ID, agent.TenantID, agent.FirstName, agent.LastName,
		agent.Email, agent.Nature, agent.OriginType, agent.OriginID,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("system agent for tenant: %w", ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return agent, nil
}

// GetAgent retrieves an agent by ID. Soft-deleted agents are not found.
func (s *AgentService) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	agent, err := scanAgent(s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE id = $1 AND deleted_at IS NULL`,
		id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// GetSystemAgentForTenant retrieves the tenant's single system agent.
func (s *AgentService) GetSystemAgentForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Agent, error) {
	agent, err := scanAgent(s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE tenant_id = $1 AND nature = 'system' AND deleted_at IS NULL`,
		tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("system agent for tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system agent: %w", err)
	}
	return agent, nil
}

// ListAgents retrieves the live agents of a tenant ordered by creation time.
func (s *AgentService) ListAgents(ctx context.Context, tenantID uuid.UUID) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
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
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent soft-deletes an agent.
func (s *AgentService) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
