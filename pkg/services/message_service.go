package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/pkg/models"
)

// MessageService manages persisted conversation messages.
type MessageService struct {
	pool *pgxpool.Pool
}

// NewMessageService creates a new MessageService.
func NewMessageService(pool *pgxpool.Pool) *MessageService {
	return &MessageService{pool: pool}
}

// CreateMessage persists one message with its metadata.
func (s *MessageService) CreateMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	if req.ThreadID == uuid.Nil {
		return nil, NewValidationError("thread_id", "required")
	}
	if req.AgentID == uuid.Nil {
		return nil, NewValidationError("agent_id", "required")
	}
	switch req.Role {
	case models.MessageRoleUser, models.MessageRoleAssistant:
	default:
		return nil, NewValidationError("role", "must be one of: user, assistant")
	}
	if req.Content == "" {
		return nil, NewValidationError("content", "required")
	}

	raw, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:       uuid.New(),
		ThreadID: req.ThreadID,
		AgentID:  req.AgentID,
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, thread_id, agent_id, role, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		msg.ID, msg.ThreadID, msg.AgentID, msg.Role, msg.Content, raw,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// GetHistory retrieves a thread's live messages in creation order.
func (s *MessageService) GetHistory(ctx context.Context, threadID uuid.UUID) ([]*models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, agent_id, role, content, metadata, created_at, updated_at
		FROM messages
		WHERE thread_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.AgentID, &msg.Role,
			&msg.Content, &msg.Metadata, &msg.CreatedAt, &msg.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return messages, nil
}

// DeleteMessage soft-deletes a message.
func (s *MessageService) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
