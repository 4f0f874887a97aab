package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/repository"
	"milestone-service/pkg/outbox"
)

type AdminHandler struct {
	failures      repository.FailureStore
	replayService *outbox.ReplayService
	logger        *zap.Logger
}

// NewAdminHandler wires the operator endpoints. replayService is nil when the
// service runs without an outbox (memory storage).
func NewAdminHandler(failures repository.FailureStore, replayService *outbox.ReplayService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		failures:      failures,
		replayService: replayService,
		logger:        logger,
	}
}

// ListCascadeFailures lists cascades waiting for an operator.
// GET /admin/cascade-failures?limit=50
func (h *AdminHandler) ListCascadeFailures(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	failures, err := h.failures.ListFailures(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list cascade failures", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cascade failures"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"failures": failures})
}

// ResolveCascadeFailure marks a cascade failure as handled.
// POST /admin/cascade-failures/:id/resolve
func (h *AdminHandler) ResolveCascadeFailure(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.failures.ResolveFailure(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrFailureNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to resolve cascade failure", zap.Int64("failure_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve cascade failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "failure_id": id})
}

// ReplayOutboxEvent republishes one outbox event.
// POST /admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	if h.replayService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbox not configured"})
		return
	}
	idStr := c.Query("id")
	if idStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
		return
	}

	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id parameter"})
		return
	}

	if err := h.replayService.ReplayEvent(c.Request.Context(), eventID); err != nil {
		switch {
		case errors.Is(err, outbox.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case errors.Is(err, outbox.ErrAlreadySent):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to replay event",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to replay event",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "replayed",
		"event_id": eventID,
	})
}

// ReplayFailedEvents republishes failed outbox events.
// POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	if h.replayService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbox not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	report, err := h.replayService.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to replay failed events",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "completed",
		"success_count": report.Replayed,
		"failed_ids":    report.Failed,
		"limit":         limit,
	})
}
