package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/dispatch"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/runtime"
)

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// CreateThread handles POST /threads/.
func (s *Server) CreateThread(c *gin.Context) {
	var req models.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if _, err := s.tenants.GetTenant(c.Request.Context(), req.TenantID); err != nil {
		respondError(c, err)
		return
	}

	thread, err := s.threads.CreateThread(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, thread)
}

// GetThread handles GET /threads/:id.
func (s *Server) GetThread(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	thread, err := s.threads.GetThread(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// ListThreads handles GET /threads/?tenant_id=...
func (s *Server) ListThreads(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id query parameter required"})
		return
	}
	threads, err := s.threads.ListThreads(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if threads == nil {
		threads = []*models.Thread{}
	}
	c.JSON(http.StatusOK, threads)
}

// DeleteThread handles DELETE /threads/:id.
func (s *Server) DeleteThread(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.threads.DeleteThread(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// postMessageRequest is the POST /threads/:id/messages body.
type postMessageRequest struct {
	Content string    `json:"content" binding:"required"`
	AgentID uuid.UUID `json:"agent_id" binding:"required"`
}

// PostMessage handles POST /threads/:id/messages. The message is persisted
// and enqueued; when this enqueue wins the processing flag the dispatch
// loop is spawned detached from the request.
func (s *Server) PostMessage(c *gin.Context) {
	threadID, ok := parseID(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	thread, err := s.threads.GetThread(ctx, threadID)
	if err != nil {
		respondError(c, err)
		return
	}
	author, err := s.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}

	// The author must be platform-scoped or belong to the thread's tenant.
	if !author.IsPlatform() && *author.TenantID != thread.TenantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent does not belong to the thread's tenant"})
		return
	}

	systemAgent, err := s.agents.GetSystemAgentForTenant(ctx, thread.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant has no system agent"})
		return
	}

	if err := s.threads.EnsureAgentInThread(ctx, thread.ID, author.ID); err != nil {
		respondError(c, err)
		return
	}

	msg, err := s.messages.CreateMessage(ctx, models.CreateMessageRequest{
		ThreadID: thread.ID,
		AgentID:  author.ID,
		Role:     models.MessageRoleUser,
		Content:  req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := s.manager.Enqueue(thread.ID, dispatch.QueuedMessage{
		MessageID: msg.ID,
		Content:   msg.Content,
	})
	if status == dispatch.StatusProcessing {
		go s.dispatcher.Run(thread.ID, thread.TenantID, systemAgent.ID)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message_id": msg.ID,
		"status":     status,
	})
}

// ListMessages handles GET /threads/:id/messages.
func (s *Server) ListMessages(c *gin.Context) {
	threadID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := s.threads.GetThread(c.Request.Context(), threadID); err != nil {
		respondError(c, err)
		return
	}
	messages, err := s.messages.GetHistory(c.Request.Context(), threadID)
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// StreamThread handles GET /threads/:id/stream. Events are relayed as SSE
// data frames until stream_end or the client disconnects. Disconnecting
// never cancels the dispatch loop.
func (s *Server) StreamThread(c *gin.Context) {
	threadID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := s.threads.GetThread(c.Request.Context(), threadID); err != nil {
		respondError(c, err)
		return
	}

	events, cancelSub := s.manager.Subscribe(threadID)
	defer cancelSub()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return false
			}
			return ev.Type != runtime.EventStreamEnd
		case <-clientGone:
			return false
		}
	})
}

// writeEvent encodes one event as a `data: <json>` SSE frame.
func writeEvent(w io.Writer, ev runtime.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return sse.Encode(w, sse.Event{Data: string(payload)})
}
