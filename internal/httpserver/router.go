package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"milestone-service/internal/handler"
	"milestone-service/pkg/rbac"
)

// Pinger is satisfied by *pgxpool.Pool and redis.Pinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connection is satisfied by the MQ publisher and consumer.
type Connection interface {
	IsConnected() bool
}

type Handlers struct {
	Milestones *handler.MilestoneHandler
	Releases   *handler.ReleaseHandler
	Admin      *handler.AdminHandler
}

type Options struct {
	JWTSecret  string
	Authorizer rbac.Authorizer
	// DB, Cache and MQ are optional readiness dependencies.
	DB     Pinger
	Cache  Pinger
	MQ     Connection
	Logger *zap.Logger
}

func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogger(opts.Logger))
	r.Use(MetricsMiddleware())

	// Health endpoints, registered before auth
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if opts.DB != nil {
			if err := opts.DB.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}

		if opts.Cache != nil {
			if err := opts.Cache.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": "cache_not_ready", "error": err.Error()})
				return
			}
		}

		if opts.MQ != nil && !opts.MQ.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	api.Use(AuthMiddleware(opts.JWTSecret))
	{
		api.POST("/milestones", h.Milestones.CreateMilestone)
		api.GET("/milestones", h.Milestones.ListMilestones)
		api.GET("/milestones/:id", h.Milestones.GetMilestone)
		api.GET("/milestones/:id/progress", h.Milestones.GetProgress)
		api.POST("/milestones/:id/close", h.Milestones.CloseMilestone)

		api.POST("/releases", h.Releases.CreateRelease)
		api.POST("/releases/:id/milestone", h.Releases.AssociateRelease)
	}

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(opts.JWTSecret), RequirePermission(opts.Authorizer, rbac.PermissionManageCascades))
	{
		admin.GET("/cascade-failures", h.Admin.ListCascadeFailures)
		admin.POST("/cascade-failures/:id/resolve", h.Admin.ResolveCascadeFailure)
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return r
}
