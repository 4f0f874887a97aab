// Package app opens the shared infrastructure every binary in this repo
// needs and assembles the core services on top of it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"milestone-service/internal/cache"
	"milestone-service/internal/repository"
	"milestone-service/internal/repository/memory"
	"milestone-service/internal/service/cascade"
	"milestone-service/internal/service/progress"
	"milestone-service/pkg/config"
	"milestone-service/pkg/db"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
	redisclient "milestone-service/pkg/redis"
	"milestone-service/pkg/util"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// Deps holds opened connections. Pool, Outbox and Redis are nil when the
// corresponding driver is "memory".
type Deps struct {
	Config *config.AppConfig
	Logger *zap.Logger

	Pool   *pgxpool.Pool
	Outbox *outbox.Repository
	Memory *memory.Store
	Store  repository.Store

	Redis   *redis.Client
	Cache   cache.ProgressCache
	Deduper cascade.Deduper
}

func Open(cfg *config.AppConfig, log *zap.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: log}

	switch cfg.Storage.Driver {
	case DriverMemory:
		log.Warn("Using in-memory storage; data is lost on restart")
		d.Memory = memory.New()
		d.Store = d.Memory
	case DriverPostgres:
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		d.Pool = pool
		d.Outbox = outbox.NewRepository(pool)
		d.Store = repository.NewPostgres(pool, d.Outbox, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	dedupTTL := time.Duration(cfg.Closure.DedupTTLSeconds) * time.Second
	switch cfg.Cache.Driver {
	case DriverMemory:
		d.Cache = cache.NewMemoryCache(cfg.Cache.TTL())
		d.Deduper = util.NewLocalDeduper(dedupTTL)
	case DriverRedis:
		rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		d.Redis = rdb
		d.Cache = cache.NewRedisCache(rdb, cfg.Cache.TTL())
		d.Deduper = util.NewDeduper(rdb, dedupTTL, log)
	default:
		d.Close()
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}

	return d, nil
}

func (d *Deps) Progress() *progress.Service {
	return progress.NewService(d.Store, d.Cache, d.Logger)
}

func (d *Deps) Runner(evicter cascade.Evicter, notifier cascade.Notifier) *cascade.Runner {
	return cascade.NewRunner(d.Store, evicter, notifier, d.Deduper, d.Logger).WithRetry(retry.Config{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		BackoffPolicy: retry.BackoffExponential,
	})
}

// RetryCounter returns a Redis-backed attempt counter, or nil without Redis.
func (d *Deps) RetryCounter() *util.RetryCounter {
	if d.Redis == nil {
		return nil
	}
	return util.NewRetryCounter(d.Redis, 24*time.Hour)
}

func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// DrainLocalCascades runs jobs deferred by the in-memory store until ctx is
// done. It stands in for the outbox and worker when storage is "memory".
func (d *Deps) DrainLocalCascades(ctx context.Context, runner *cascade.Runner) {
	if d.Memory == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.Memory.JobsReady():
			for _, job := range d.Memory.TakeJobs() {
				if _, err := runner.Run(ctx, job); err != nil {
					d.Logger.Error("Local cascade failed",
						zap.String("job_id", job.JobID),
						zap.Int64("milestone_id", job.MilestoneID),
						zap.Error(err),
					)
					metrics.IncrementCascadeFailure()
				}
			}
		}
	}
}
