package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/rbac"
)

// ActorKey is the gin context key the auth middleware stores the caller under.
const ActorKey = "actor"

func actorFrom(c *gin.Context) (rbac.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return rbac.Actor{}, false
	}
	actor, ok := v.(rbac.Actor)
	return actor, ok
}

func statusOf(err error) int {
	var denied *rbac.PermissionDeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden
	}
	switch model.Kind(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors onto HTTP statuses. Server-side failures are
// logged at error level with a generic body; client errors echo the message.
func writeError(c *gin.Context, log *zap.Logger, op string, err error) {
	status := statusOf(err)
	log = logger.WithTrace(c.Request.Context(), log)
	if status >= http.StatusInternalServerError {
		log.Error(op+": failed", zap.String("kind", model.Kind(err)), zap.Error(err))
		msg := "internal error"
		if errors.Is(err, model.ErrInconsistentState) {
			msg = model.ErrInconsistentState.Error()
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	log.Warn(op+": rejected", zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error(), "kind": model.Kind(err)})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func authorize(c *gin.Context, authz rbac.Authorizer, milestoneID int64, permission string) error {
	actor, ok := actorFrom(c)
	if !ok {
		return model.ErrUnauthorized
	}
	return rbac.CheckPermission(c.Request.Context(), authz, actor, milestoneID, permission)
}
