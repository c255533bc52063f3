package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/models"
)

// Validation runs before any query, so these tests exercise the input
// checks without a database.

func TestCreateTenant_RequiresName(t *testing.T) {
	svc := NewTenantService(nil)
	_, err := svc.CreateTenant(context.Background(), models.CreateTenantRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateAgent_Validation(t *testing.T) {
	svc := NewAgentService(nil)

	tests := []struct {
		name  string
		req   models.CreateAgentRequest
		field string
	}{
		{
			name:  "missing first name",
			req:   models.CreateAgentRequest{Nature: models.AgentNatureHuman},
			field: "first_name",
		},
		{
			name:  "invalid nature",
			req:   models.CreateAgentRequest{FirstName: "Ada", Nature: "robot"},
			field: "nature",
		},
		{
			name:  "system agent without tenant",
			req:   models.CreateAgentRequest{FirstName: "Assistant", Nature: models.AgentNatureSystem},
			field: "tenant_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAgent(context.Background(), tt.req)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateThread_RequiresTenant(t *testing.T) {
	svc := NewThreadService(nil)
	_, err := svc.CreateThread(context.Background(), models.CreateThreadRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateMessage_Validation(t *testing.T) {
	svc := NewMessageService(nil)
	threadID := uuid.New()
	agentID := uuid.New()

	tests := []struct {
		name  string
		req   models.CreateMessageRequest
		field string
	}{
		{
			name:  "missing thread",
			req:   models.CreateMessageRequest{AgentID: agentID, Role: models.MessageRoleUser, Content: "hi"},
			field: "thread_id",
		},
		{
			name:  "missing agent",
			req:   models.CreateMessageRequest{ThreadID: threadID, Role: models.MessageRoleUser, Content: "hi"},
			field: "agent_id",
		},
		{
			name:  "bad role",
			req:   models.CreateMessageRequest{ThreadID: threadID, AgentID: agentID, Role: "narrator", Content: "hi"},
			field: "role",
		},
		{
			name:  "empty content",
			req:   models.CreateMessageRequest{ThreadID: threadID, AgentID: agentID, Role: models.MessageRoleUser},
			field: "content",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateMessage(context.Background(), tt.req)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMarshalMetadata(t *testing.T) {
	raw, err := marshalMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	raw, err = marshalMetadata(map[string]any{"source": "api"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"api"}`, string(raw))
}

func TestValidationErrorHelpers(t *testing.T) {
	err := NewValidationError("title", "too long")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "title")
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(ErrNotFound))
}
