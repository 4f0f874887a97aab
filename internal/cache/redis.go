package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"milestone-service/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, milestoneID int64) (*model.ProgressSnapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(milestoneID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", Key(milestoneID), err)
	}

	var snap model.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot %s: %w", Key(milestoneID), err)
	}
	return &snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, snap *model.ProgressSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(snap.MilestoneID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", Key(snap.MilestoneID), err)
	}
	return nil
}

func (c *RedisCache) Evict(ctx context.Context, milestoneID int64) error {
	if err := c.rdb.Del(ctx, Key(milestoneID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", Key(milestoneID), err)
	}
	return nil
}
