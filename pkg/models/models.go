// Package models defines the persisted entities and the request types the
// service layer accepts.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentNature distinguishes the three kinds of agents.
type AgentNature string

const (
	// AgentNatureHuman is an end-user identity.
	AgentNatureHuman AgentNature = "human"

	// AgentNatureSystem is the LLM persona that answers on behalf of a
	// tenant. Each tenant has exactly one.
	AgentNatureSystem AgentNature = "system"

	// AgentNatureWorker is a task-scoped LLM agent.
	AgentNatureWorker AgentNature = "worker"
)

// MessageRole is the author role of a persisted message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Tenant is an isolated customer account.
type Tenant struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Agent is a conversation participant. TenantID is nil for
// platform-scoped agents.
type Agent struct {
	ID         uuid.UUID   `json:"id"`
	TenantID   *uuid.UUID  `json:"tenant_id,omitempty"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name,omitempty"`
	Email      string      `json:"email,omitempty"`
	Nature     AgentNature `json:"nature"`
	OriginType string      `json:"origin_type,omitempty"`
	OriginID   string      `json:"origin_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	DeletedAt  *time.Time  `json:"deleted_at,omitempty"`
}

// IsPlatform reports whether the agent is platform-scoped.
func (a *Agent) IsPlatform() bool { return a.TenantID == nil }

// Thread is a conversation owned by a tenant.
type Thread struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// Message is one persisted conversation turn.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	ThreadID  uuid.UUID      `json:"thread_id"`
	AgentID   uuid.UUID      `json:"agent_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// CreateTenantRequest creates a tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// CreateAgentRequest creates an agent. A nil TenantID creates a
// platform-scoped agent.
type CreateAgentRequest struct {
	TenantID   *uuid.UUID  `json:"tenant_id,omitempty"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name,omitempty"`
	Email      string      `json:"email,omitempty"`
	Nature     AgentNature `json:"nature"`
	OriginType string      `json:"origin_type,omitempty"`
	OriginID   string      `json:"origin_id,omitempty"`
}

// CreateThreadRequest creates a thread.
type CreateThreadRequest struct {
	TenantID uuid.UUID      `json:"tenant_id"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateMessageRequest persists one message.
type CreateMessageRequest struct {
	ThreadID uuid.UUID      `json:"thread_id"`
	AgentID  uuid.UUID      `json:"agent_id"`
	Role     MessageRole    `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
