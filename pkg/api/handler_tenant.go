package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/pkg/models"
)

// CreateTenant handles POST /tenants/.
func (s *Server) CreateTenant(c *gin.Context) {
	var req models.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tenant, err := s.tenants.CreateTenant(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

// GetTenant handles GET /tenants/:id.
func (s *Server) GetTenant(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	tenant, err := s.tenants.GetTenant(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

// ListTenants handles GET /tenants/.
func (s *Server) ListTenants(c *gin.Context) {
	tenants, err := s.tenants.ListTenants(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if tenants == nil {
		tenants = []*models.Tenant{}
	}
	c.JSON(http.StatusOK, tenants)
}
