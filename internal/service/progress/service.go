// Package progress computes milestone progress snapshots and serves them
// through a version-checked cache.
package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/cache"
	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
)

// Store is the read side the progress engine needs.
type Store interface {
	GetMilestone(ctx context.Context, id int64) (*model.Milestone, error)
	BumpProgressVersion(ctx context.Context, id int64) (int64, error)
	ListReleases(ctx context.Context, milestoneID int64) ([]*model.Release, error)
	IssueStats(ctx context.Context, milestoneID int64) (model.IssueStats, error)
	MergeRequestStats(ctx context.Context, milestoneID int64) (model.MergeRequestStats, error)
	PendingCascade(ctx context.Context, milestoneID int64) (int64, error)
	WeightedEnabled(ctx context.Context, scope model.Scope) (bool, error)
}

type Service struct {
	store  Store
	cache  cache.ProgressCache
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, c cache.ProgressCache, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetProgress returns the milestone's progress. A cached snapshot is served
// only when it was computed at the milestone's current progress version.
func (s *Service) GetProgress(ctx context.Context, milestoneID int64) (*model.ProgressSnapshot, error) {
	log := logger.ForMilestone(ctx, s.logger, milestoneID)

	m, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		metrics.RecordOperation("progress", model.Kind(err))
		return nil, err
	}

	cached, ok, err := s.cache.Get(ctx, milestoneID)
	switch {
	case err != nil:
		log.Warn("Progress cache read failed, recomputing", zap.Error(err))
		metrics.RecordCacheLookup("error")
	case !ok:
		metrics.RecordCacheLookup("miss")
	case cached.Version == m.ProgressVersion:
		if err := verifyAgainst(cached, m); err != nil {
			return nil, s.inconsistent(ctx, log, m.ID, err)
		}
		cached.RefreshAt(m, s.now())
		metrics.RecordCacheLookup("hit")
		metrics.RecordOperation("progress", "ok")
		return cached, nil
	default:
		metrics.RecordCacheLookup("stale")
	}

	snap, err := s.compute(ctx, m)
	if err != nil {
		log.Error("Failed to compute progress", zap.Error(err))
		metrics.RecordOperation("progress", model.KindInternal)
		return nil, err
	}
	if !snap.CheckBounds() {
		return nil, s.inconsistent(ctx, log, m.ID, fmt.Errorf(
			"computed counters out of range: issues %d/%d, weight %d/%d, merge requests %d/%d",
			snap.CompletedIssues, snap.TotalIssues, snap.CompletedWeight, snap.TotalWeight,
			snap.MergedRequests, snap.TotalRequests))
	}

	// A newer snapshot from a concurrent reader must not be overwritten.
	if cached == nil || cached.Version <= snap.Version {
		if err := s.cache.Set(ctx, snap); err != nil {
			log.Warn("Failed to write progress cache", zap.Error(err))
		}
	}

	metrics.RecordOperation("progress", "ok")
	return snap, nil
}

// Invalidate makes every cached snapshot of the milestone stale. Used when a
// dependent entity changes outside this service.
func (s *Service) Invalidate(ctx context.Context, milestoneID int64) error {
	version, err := s.store.BumpProgressVersion(ctx, milestoneID)
	if err != nil {
		return err
	}
	s.Evict(ctx, milestoneID)
	logger.WithTrace(ctx, s.logger).Debug("Progress invalidated",
		zap.Int64("milestone_id", milestoneID),
		zap.Int64("progress_version", version),
	)
	return nil
}

// Evict drops the cached snapshot. Failures are only logged: the version
// check already rejects snapshots written before the latest bump.
func (s *Service) Evict(ctx context.Context, milestoneID int64) {
	if err := s.cache.Evict(ctx, milestoneID); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to evict progress cache",
			zap.Int64("milestone_id", milestoneID),
			zap.Error(err),
		)
	}
}

func (s *Service) inconsistent(ctx context.Context, log *zap.Logger, milestoneID int64, cause error) error {
	log.Error("Inconsistent progress state", zap.Error(cause))
	metrics.IncrementInconsistentState()
	metrics.RecordOperation("progress", model.KindConsistency)
	s.Evict(ctx, milestoneID)
	return fmt.Errorf("milestone %d: %v: %w", milestoneID, cause, model.ErrInconsistentState)
}

func (s *Service) compute(ctx context.Context, m *model.Milestone) (*model.ProgressSnapshot, error) {
	start := time.Now()
	defer func() { metrics.RecordProgressCompute(time.Since(start)) }()

	now := s.now()
	snap := &model.ProgressSnapshot{
		MilestoneID: m.ID,
		State:       m.State,
		ElapsedDays: m.ElapsedDays(now),
		TotalDays:   m.TotalDays(),
		Version:     m.ProgressVersion,
		Releases:    []model.ReleaseProgress{},
	}

	issues, err := s.store.IssueStats(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	snap.CompletedIssues = issues.Completed
	snap.TotalIssues = issues.Total

	weighted, err := s.store.WeightedEnabled(ctx, m.Scope)
	if err != nil {
		return nil, err
	}
	if weighted {
		snap.Weighted = true
		snap.CompletedWeight = issues.CompletedWeight
		snap.TotalWeight = issues.TotalWeight
	}

	mrs, err := s.store.MergeRequestStats(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	snap.MergedRequests = mrs.Merged
	snap.TotalRequests = mrs.Total

	releases, err := s.store.ListReleases(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range releases {
		snap.Releases = append(snap.Releases, model.ReleaseProgress{
			ReleaseID:  r.ID,
			Tag:        r.Tag,
			ReleasedAt: r.ReleasedAt,
			Status:     r.StatusAt(now),
		})
	}

	if m.State == model.StateClosed {
		if snap.PendingCascade, err = s.store.PendingCascade(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// verifyAgainst checks the fields of a cached snapshot that can be derived
// from the milestone row alone.
func verifyAgainst(snap *model.ProgressSnapshot, m *model.Milestone) error {
	if snap.MilestoneID != m.ID {
		return fmt.Errorf("cached snapshot belongs to milestone %d", snap.MilestoneID)
	}
	if snap.State != m.State {
		return fmt.Errorf("cached state %s, store state %s at version %d", snap.State, m.State, m.ProgressVersion)
	}
	if snap.TotalDays != m.TotalDays() {
		return fmt.Errorf("cached total days %d, store total days %d", snap.TotalDays, m.TotalDays())
	}
	if !snap.CheckBounds() {
		return fmt.Errorf("cached counters out of range")
	}
	return nil
}
