package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/models"
)

// CreateAgent handles POST /agents/. Platform-scoped agents (no tenant_id)
// can only be created here, not mutated through tenant APIs.
func (s *Server) CreateAgent(c *gin.Context) {
	var req models.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.TenantID != nil {
		if _, err := s.tenants.GetTenant(c.Request.Context(), *req.TenantID); err != nil {
			respondError(c, err)
			return
		}
	}

	agent, err := s.agents.CreateAgent(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// ListAgents handles GET /agents/?tenant_id=...
func (s *Server) ListAgents(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id query parameter required"})
		return
	}
	agents, err := s.agents.ListAgents(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	c.JSON(http.StatusOK, agents)
}

// GetAgent handles GET /agents/:id.
func (s *Server) GetAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	agent, err := s.agents.GetAgent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}
