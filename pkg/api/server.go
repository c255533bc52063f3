// Package api exposes the HTTP surface: thread, tenant and agent CRUD,
// message submission and the per-thread SSE stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/pkg/database"
	"github.com/parleyhq/parley/pkg/dispatch"
	"github.com/parleyhq/parley/pkg/services"
)

// Server holds the handlers' dependencies.
type Server struct {
	db         *database.Client
	tenants    *services.TenantService
	agents     *services.AgentService
	threads    *services.ThreadService
	messages   *services.MessageService
	manager    *dispatch.Manager
	dispatcher *dispatch.Dispatcher
}

// NewServer creates an API server over the given services and dispatcher.
func NewServer(
	db *database.Client,
	tenants *services.TenantService,
	agents *services.AgentService,
	threads *services.ThreadService,
	messages *services.MessageService,
	manager *dispatch.Manager,
	dispatcher *dispatch.Dispatcher,
) *Server {
	return &Server{
		db:         db,
		tenants:    tenants,
		agents:     agents,
		threads:    threads,
		messages:   messages,
		manager:    manager,
		dispatcher: dispatcher,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	r.GET("/healthz", s.Health)

	r.POST("/tenants/", s.CreateTenant)
	r.GET("/tenants/", s.ListTenants)
	r.GET("/tenants/:id", s.GetTenant)

	r.POST("/agents/", s.CreateAgent)
	r.GET("/agents/", s.ListAgents)
	r.GET("/agents/:id", s.GetAgent)

	r.POST("/threads/", s.CreateThread)
	r.GET("/threads/", s.ListThreads)
	r.GET("/threads/:id", s.GetThread)
	r.DELETE("/threads/:id", s.DeleteThread)
	r.POST("/threads/:id/messages", s.PostMessage)
	r.GET("/threads/:id/messages", s.ListMessages)
	r.GET("/threads/:id/stream", s.StreamThread)

	return r
}

// Health reports process and database health.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
