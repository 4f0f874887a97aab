package cache

import (
	"context"
	"sync"
	"time"

	"milestone-service/internal/model"
)

type entry struct {
	snap      model.ProgressSnapshot
	expiresAt time.Time
}

// MemoryCache is a process-local ProgressCache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]entry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]entry),
	}
}

func (c *MemoryCache) Get(_ context.Context, milestoneID int64) (*model.ProgressSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[milestoneID]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && !c.now().Before(e.expiresAt) {
		delete(c.entries, milestoneID)
		return nil, false, nil
	}
	snap := e.snap
	snap.Releases = append([]model.ReleaseProgress(nil), e.snap.Releases...)
	return &snap, true, nil
}

func (c *MemoryCache) Set(_ context.Context, snap *model.ProgressSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *snap
	cp.Releases = append([]model.ReleaseProgress(nil), snap.Releases...)
	c.entries[snap.MilestoneID] = entry{snap: cp, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Evict(_ context.Context, milestoneID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, milestoneID)
	return nil
}

// Put plants an entry directly.
func (c *MemoryCache) Put(snap model.ProgressSnapshot) {
	_ = c.Set(context.Background(), &snap)
}
