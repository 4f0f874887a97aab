package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/app"
	"milestone-service/internal/handler"
	"milestone-service/internal/httpserver"
	"milestone-service/internal/notify"
	"milestone-service/internal/service/association"
	"milestone-service/internal/service/cascade"
	"milestone-service/internal/service/closure"
	"milestone-service/pkg/config"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/otel"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/rbac"
	redisclient "milestone-service/pkg/redis"
)

func main() {
	env := config.GetConfigEnv()
	log := logger.NewLogger(env, "milestone-server")
	defer log.Sync()

	cfg, err := config.Load(env, config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting milestone-service...",
		zap.String("env", env),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.Int("async_threshold", cfg.Closure.AsyncThreshold),
	)

	shutdownOTel, err := otel.Init(otel.Config{
		ServiceName: cfg.ServiceName,
		Environment: env,
		Endpoint:    cfg.OTel.Endpoint,
		Enabled:     cfg.OTel.Enabled,
		SampleRatio: cfg.OTel.SampleRatio,
	}, log)
	if err != nil {
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
		shutdownOTel = func() {}
	}
	defer shutdownOTel()

	deps, err := app.Open(cfg, log)
	if err != nil {
		log.Fatal("Failed to open dependencies", zap.Error(err))
	}
	defer deps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres mode publishes through RabbitMQ; memory mode keeps everything in-process.
	var (
		publisher  *mq.Publisher
		notifier   cascade.Notifier = notify.NewLogNotifier(log)
		replay     *outbox.ReplayService
		mqReady    httpserver.Connection
		dbReady    httpserver.Pinger
		cacheReady httpserver.Pinger
	)
	if deps.Redis != nil {
		cacheReady = redisclient.Pinger{Client: deps.Redis}
	}
	if deps.Pool != nil {
		dbReady = deps.Pool
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		mqReady = publisher
		notifier = notify.NewMQNotifier(publisher, log)

		dispatcher := outbox.NewDispatcher(deps.Outbox, publisher, log).
			WithInterval(time.Duration(cfg.Outbox.IntervalMS) * time.Millisecond).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		go dispatcher.Start(ctx)
		replay = outbox.NewReplayService(deps.Outbox, publisher, log)
		log.Info("Outbox dispatcher started")
	}

	progressSvc := deps.Progress()
	runner := deps.Runner(progressSvc, notifier)
	if deps.Memory != nil {
		go deps.DrainLocalCascades(ctx, runner)
	}

	associationSvc := association.NewService(deps.Store, progressSvc, log)
	closureSvc := closure.NewService(deps.Store, runner, progressSvc, cfg.Closure.AsyncThreshold, log)
	authz := rbac.NewRoleAuthorizer()

	router := httpserver.NewRouter(httpserver.Handlers{
		Milestones: handler.NewMilestoneHandler(associationSvc, progressSvc, closureSvc, authz, log),
		Releases:   handler.NewReleaseHandler(associationSvc, authz, log),
		Admin:      handler.NewAdminHandler(deps.Store, replay, log),
	}, httpserver.Options{
		JWTSecret:  cfg.JWT.Secret,
		Authorizer: authz,
		DB:         dbReady,
		Cache:      cacheReady,
		MQ:         mqReady,
		Logger:     log,
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("milestone-service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down milestone-service gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("milestone-service shutdown complete")
}
