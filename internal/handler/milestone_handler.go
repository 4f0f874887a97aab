package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/service/association"
	"milestone-service/internal/service/closure"
	"milestone-service/internal/service/progress"
	"milestone-service/pkg/rbac"
)

type MilestoneHandler struct {
	milestones *association.Service
	progress   *progress.Service
	closure    *closure.Service
	authz      rbac.Authorizer
	logger     *zap.Logger
}

func NewMilestoneHandler(
	milestones *association.Service,
	progress *progress.Service,
	closure *closure.Service,
	authz rbac.Authorizer,
	logger *zap.Logger,
) *MilestoneHandler {
	return &MilestoneHandler{
		milestones: milestones,
		progress:   progress,
		closure:    closure,
		authz:      authz,
		logger:     logger,
	}
}

type createMilestoneRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	DueDate     string `json:"due_date"`
	ProjectID   *int64 `json:"project_id"`
	GroupID     *int64 `json:"group_id"`
}

func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.logger.Info("CreateMilestone request received",
		zap.String("title", req.Title),
		zap.String("client_ip", c.ClientIP()),
	)
	if err := authorize(c, h.authz, 0, rbac.PermissionCreateMilestone); err != nil {
		writeError(c, h.logger, "CreateMilestone", err)
		return
	}

	start, err := model.ParseDate(req.StartDate)
	if err != nil {
		writeError(c, h.logger, "CreateMilestone", err)
		return
	}
	due, err := model.ParseDate(req.DueDate)
	if err != nil {
		writeError(c, h.logger, "CreateMilestone", err)
		return
	}

	m, err := h.milestones.CreateMilestone(c.Request.Context(), association.CreateMilestoneInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   start,
		DueDate:     due,
		Scope:       model.Scope{ProjectID: req.ProjectID, GroupID: req.GroupID},
	})
	if err != nil {
		writeError(c, h.logger, "CreateMilestone", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *MilestoneHandler) GetMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := authorize(c, h.authz, id, rbac.PermissionReadMilestone); err != nil {
		writeError(c, h.logger, "GetMilestone", err)
		return
	}
	m, err := h.milestones.GetMilestone(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "GetMilestone", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MilestoneHandler) ListMilestones(c *gin.Context) {
	var scope model.Scope
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		scope.ProjectID = &id
	}
	if raw := c.Query("group_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
			return
		}
		scope.GroupID = &id
	}
	if err := authorize(c, h.authz, 0, rbac.PermissionReadMilestone); err != nil {
		writeError(c, h.logger, "ListMilestones", err)
		return
	}

	milestones, err := h.milestones.ListMilestones(c.Request.Context(), scope)
	if err != nil {
		writeError(c, h.logger, "ListMilestones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (h *MilestoneHandler) GetProgress(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := authorize(c, h.authz, id, rbac.PermissionReadMilestone); err != nil {
		writeError(c, h.logger, "GetProgress", err)
		return
	}
	snap, err := h.progress.GetProgress(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "GetProgress", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"progress":         snap,
		"percent":          snap.Percent(),
		"weighted_percent": snap.WeightedPercent(),
	})
}

func (h *MilestoneHandler) CloseMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.logger.Info("CloseMilestone request received",
		zap.Int64("milestone_id", id),
		zap.String("client_ip", c.ClientIP()),
	)
	if err := authorize(c, h.authz, id, rbac.PermissionCloseMilestone); err != nil {
		writeError(c, h.logger, "CloseMilestone", err)
		return
	}
	actor, _ := actorFrom(c)

	res, err := h.closure.CloseMilestone(c.Request.Context(), id, actor.ID)
	if err != nil {
		writeError(c, h.logger, "CloseMilestone", err)
		return
	}
	status := http.StatusOK
	if res.Mode == model.CascadeDeferred {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}
