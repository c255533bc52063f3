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

// TenantService manages tenant accounts.
type TenantService struct {
	pool *pgxpool.Pool
}

// NewTenantService creates a new TenantService.
func NewTenantService(pool *pgxpool.Pool) *TenantService {
	return &TenantService{pool: pool}
}

// CreateTenant creates a new tenant.
func (s *TenantService) CreateTenant(ctx context.Context, req models.CreateTenantRequest) (*models.Tenant, error) {
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}

	tenant := &models.Tenant{ID: uuid.New(), Name: req.Name}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (id, name)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`,
		tenant.ID, tenant.Name).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenant, nil
}

// GetTenant retrieves a tenant by ID. Soft-deleted tenants are not found.
func (s *TenantService) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM tenants
		WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// ListTenants retrieves all live tenants ordered by creation time.
func (s *TenantService) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM tenants
		WHERE deleted_at IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant := &models.Tenant{}
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// DeleteTenant soft-deletes a tenant.
func (s *TenantService) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
