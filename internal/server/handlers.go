package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/ordersync/internal/view"
)

type resetRequest struct {
	LastSequenceID *int64 `json:"lastSequenceId" binding:"required"`
}

type trackResponse struct {
	EntityID string `json:"entityId"`
	Tracked  bool   `json:"tracked"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTrigger(c *gin.Context) {
	report, err := s.trigger.Run(c.Request.Context())
	if err != nil {
		s.internalError(c, "trigger run failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.views.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.viewError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleHistory(c *gin.Context) {
	history, err := s.views.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.viewError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) handleTrack(c *gin.Context) {
	id := c.Param("id")
	if err := s.checkpoints.Track(c.Request.Context(), id); err != nil {
		s.internalError(c, "track failed", err)
		return
	}
	c.JSON(http.StatusOK, trackResponse{EntityID: id, Tracked: true})
}

func (s *Server) handleGetCheckpoint(c *gin.Context) {
	id := c.Param("id")
	cp, found, err := s.checkpoints.Checkpoint(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, "read checkpoint failed", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkpoint not found"})
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (s *Server) handleResetCheckpoint(c *gin.Context) {
	id := c.Param("id")

	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"lastSequenceId\": n}"})
		return
	}
	if *req.LastSequenceID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lastSequenceId must not be negative"})
		return
	}

	ctx := c.Request.Context()
	if err := s.checkpoints.Reset(ctx, id, *req.LastSequenceID); err != nil {
		s.internalError(c, "reset checkpoint failed", err)
		return
	}
	if err := s.views.InvalidateEntity(ctx, id); err != nil {
		s.logger.Warn("cache invalidation failed", "entity", id, "error", err)
	}
	cp, _, err := s.checkpoints.Checkpoint(ctx, id)
	if err != nil {
		s.internalError(c, "read checkpoint failed", err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (s *Server) viewError(c *gin.Context, err error) {
	if errors.Is(err, view.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	s.internalError(c, "order view failed", err)
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, "path", c.FullPath(), "id", c.Param("id"), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
