package util

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true the first time handler+key is seen within the TTL
// and false for duplicates. When Redis is unavailable it returns true: a
// duplicate side effect is preferred over a dropped one.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, key string) bool {
	dedupKey := "dedup:" + handler + ":" + key

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", dedupKey),
		)
	}
	return ok
}

// Release drops the dedup key so a failed side effect can be attempted again.
func (d *Deduper) Release(ctx context.Context, handler string, key string) {
	if err := d.rdb.Del(ctx, "dedup:"+handler+":"+key).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// LocalDeduper is an in-process stand-in for Deduper, used when Redis is
// not configured.
type LocalDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewLocalDeduper(ttl time.Duration) *LocalDeduper {
	return &LocalDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *LocalDeduper) AcquireOnce(_ context.Context, handler string, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := handler + ":" + key
	if exp, ok := d.seen[k]; ok && d.now().Before(exp) {
		return false
	}
	d.seen[k] = d.now().Add(d.ttl)
	return true
}

func (d *LocalDeduper) Release(_ context.Context, handler string, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, handler+":"+key)
}
