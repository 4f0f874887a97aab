package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/service/association"
	"milestone-service/pkg/rbac"
)

type ReleaseHandler struct {
	releases *association.Service
	authz    rbac.Authorizer
	logger   *zap.Logger
}

func NewReleaseHandler(releases *association.Service, authz rbac.Authorizer, logger *zap.Logger) *ReleaseHandler {
	return &ReleaseHandler{releases: releases, authz: authz, logger: logger}
}

type createReleaseRequest struct {
	ProjectID   int64  `json:"project_id"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
	ReleasedAt  string `json:"released_at"`
}

func (h *ReleaseHandler) CreateRelease(c *gin.Context) {
	var req createReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := authorize(c, h.authz, 0, rbac.PermissionCreateRelease); err != nil {
		writeError(c, h.logger, "CreateRelease", err)
		return
	}
	releasedAt, err := model.ParseDate(req.ReleasedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid released_at"})
		return
	}

	rel, err := h.releases.CreateRelease(c.Request.Context(), association.CreateReleaseInput{
		ProjectID:   req.ProjectID,
		Tag:         req.Tag,
		Description: req.Description,
		ReleasedAt:  releasedAt,
	})
	if err != nil {
		writeError(c, h.logger, "CreateRelease", err)
		return
	}
	c.JSON(http.StatusCreated, rel)
}

type associateRequest struct {
	MilestoneID int64 `json:"milestone_id"`
}

func (h *ReleaseHandler) AssociateRelease(c *gin.Context) {
	releaseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req associateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MilestoneID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "milestone_id required"})
		return
	}
	h.logger.Info("AssociateRelease request received",
		zap.Int64("release_id", releaseID),
		zap.Int64("milestone_id", req.MilestoneID),
	)
	if err := authorize(c, h.authz, req.MilestoneID, rbac.PermissionAssociateRelease); err != nil {
		writeError(c, h.logger, "AssociateRelease", err)
		return
	}

	assoc, err := h.releases.AssociateRelease(c.Request.Context(), releaseID, req.MilestoneID)
	if err != nil {
		writeError(c, h.logger, "AssociateRelease", err)
		return
	}
	c.JSON(http.StatusOK, assoc)
}
