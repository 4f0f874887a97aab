package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"milestone-service/internal/model"
)

func TestKey(t *testing.T) {
	if got := Key(42); got != "progress:milestone:42" {
		t.Fatalf("Key = %q", got)
	}
}

func TestMemoryCacheRoundTripAndEvict(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	snap := &model.ProgressSnapshot{MilestoneID: 7, Version: 3, Releases: []model.ReleaseProgress{{ReleaseID: 1, Tag: "v1"}}}

	if _, ok, _ := c.Get(ctx, 7); ok {
		t.Fatal("empty cache hit")
	}
	_ = c.Set(ctx, snap)
	snap.Releases[0].Tag = "mutated"

	got, ok, err := c.Get(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Version != 3 || got.Releases[0].Tag != "v1" {
		t.Fatalf("cached snapshot aliased caller memory: %+v", got)
	}

	_ = c.Evict(ctx, 7)
	if _, ok, _ := c.Get(ctx, 7); ok {
		t.Fatal("hit after evict")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Put(model.ProgressSnapshot{MilestoneID: 1})

	now = now.Add(59 * time.Second)
	if _, ok, _ := c.Get(context.Background(), 1); !ok {
		t.Fatal("expired too early")
	}
	now = now.Add(time.Second)
	if _, ok, _ := c.Get(context.Background(), 1); ok {
		t.Fatal("entry outlived its ttl")
	}
}

func TestRedisCacheUnavailableReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := NewRedisCache(rdb, time.Minute)

	_, ok, err := c.Get(context.Background(), 1)
	if err == nil || ok {
		t.Fatalf("Get against dead redis = ok %v, err %v", ok, err)
	}
	if err := c.Set(context.Background(), &model.ProgressSnapshot{MilestoneID: 1}); err == nil {
		t.Fatal("Set against dead redis should fail")
	}
}
