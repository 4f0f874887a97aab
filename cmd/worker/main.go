package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/app"
	"milestone-service/internal/mqhandler"
	"milestone-service/internal/notify"
	"milestone-service/pkg/config"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/otel"
)

const (
	cascadeQueue       = "milestone.cascade.q"
	inputsChangedQueue = "milestone.inputs_changed.q"
)

func main() {
	env := config.GetConfigEnv()
	log := logger.NewLogger(env, "milestone-worker")
	defer log.Sync()

	cfg, err := config.Load(env, config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Storage.Driver != app.DriverPostgres || cfg.Cache.Driver != app.DriverRedis {
		log.Fatal("Worker requires postgres storage and redis cache",
			zap.String("storage", cfg.Storage.Driver),
			zap.String("cache", cfg.Cache.Driver),
		)
	}

	log.Info("Starting milestone worker...",
		zap.String("env", env),
		zap.Int("max_attempts", cfg.Closure.MaxAttempts),
	)

	shutdownOTel, err := otel.Init(otel.Config{
		ServiceName: cfg.ServiceName + "-worker",
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

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	progressSvc := deps.Progress()
	runner := deps.Runner(progressSvc, notify.NewMQNotifier(publisher, log))

	cascadeHandler := mqhandler.NewCascadeHandler(runner, deps.RetryCounter(), publisher, deps.Store, cfg.Closure.MaxAttempts, log)
	inputsHandler := mqhandler.NewInputsChangedHandler(progressSvc, log)

	// MQ Consumer for milestone.cascade
	log.Info("Initializing MQ consumer for milestone.cascade...",
		zap.String("queue", cascadeQueue),
		zap.String("routing_key", mqcontracts.RoutingKeyCascadeRequested),
	)
	cascadeConsumer, err := mq.NewConsumer(cfg.MQ.URL, cascadeQueue, mqcontracts.RoutingKeyCascadeRequested, log)
	if err != nil {
		log.Fatal("Failed to init cascade consumer", zap.Error(err))
	}
	defer cascadeConsumer.Close()
	cascadeConsumer.SetHandler(cascadeHandler.Handle)
	go func() {
		if err := cascadeConsumer.StartConsuming(); err != nil {
			log.Fatal("Cascade consumer failed", zap.Error(err))
		}
	}()

	// MQ Consumer for milestone.inputs_changed
	log.Info("Initializing MQ consumer for milestone.inputs_changed...",
		zap.String("queue", inputsChangedQueue),
		zap.String("routing_key", mqcontracts.RoutingKeyInputsChanged),
	)
	inputsConsumer, err := mq.NewConsumer(cfg.MQ.URL, inputsChangedQueue, mqcontracts.RoutingKeyInputsChanged, log)
	if err != nil {
		log.Fatal("Failed to init inputs_changed consumer", zap.Error(err))
	}
	defer inputsConsumer.Close()
	inputsConsumer.SetHandler(inputsHandler.Handle)
	go func() {
		if err := inputsConsumer.StartConsuming(); err != nil {
			log.Fatal("inputs_changed consumer failed", zap.Error(err))
		}
	}()

	// Worker exposes health and metrics only.
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := deps.Pool.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			c.JSON(500, gin.H{"status": "cache_not_ready", "error": err.Error()})
			return
		}
		if !cascadeConsumer.IsConnected() || !inputsConsumer.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	metricsAddr := config.GetEnv("WORKER_METRICS_ADDR", ":9091")
	srv := &http.Server{Addr: metricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	log.Info("All consumers started, worker is ready to process messages",
		zap.String("metrics_addr", metricsAddr),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker gracefully...")
	cascadeConsumer.Stop()
	inputsConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	log.Info("Worker shutdown complete")
}
