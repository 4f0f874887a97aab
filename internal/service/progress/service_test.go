package progress

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/cache"
	"milestone-service/internal/model"
	"milestone-service/internal/repository/memory"
)

var today = time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type fixture struct {
	store *memory.Store
	cache *cache.MemoryCache
	svc   *Service
}

func newFixture() *fixture {
	store := memory.New()
	c := cache.NewMemoryCache(time.Hour)
	svc := NewService(store, c, zap.NewNop()).WithClock(func() time.Time { return today })
	return &fixture{store: store, cache: c, svc: svc}
}

func (f *fixture) milestone(t *testing.T) *model.Milestone {
	t.Helper()
	m := &model.Milestone{
		Title:     "v2.0",
		Scope:     model.ProjectScope(1),
		StartDate: date(2024, 3, 1),
		DueDate:   date(2024, 3, 31),
	}
	if err := f.store.CreateMilestone(context.Background(), m); err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	return m
}

func TestProgressReflectsInvalidatedChanges(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)
	f.store.AddIssue(m.ID, model.IssueClosed, nil)
	second := f.store.AddIssue(m.ID, model.IssueOpened, nil)
	f.store.AddIssue(m.ID, model.IssueOpened, nil)
	f.store.AddIssue(m.ID, model.IssueOpened, nil)

	first, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if first.CompletedIssues != 1 || first.TotalIssues != 4 || first.Percent() != 0.25 {
		t.Fatalf("first = %+v", first)
	}
	if first.ElapsedDays != 10 || first.TotalDays != 30 {
		t.Fatalf("days = %d/%d", first.ElapsedDays, first.TotalDays)
	}

	f.store.SetIssueState(second, model.IssueClosed)
	if err := f.svc.Invalidate(ctx, m.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	after, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if after.CompletedIssues != 2 || after.Percent() != 0.5 {
		t.Fatalf("after = %+v", after)
	}
	if after.Version <= first.Version {
		t.Fatalf("version did not advance: %d -> %d", first.Version, after.Version)
	}
}

func TestCachedResultEqualsFreshResult(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)
	f.store.AddIssue(m.ID, model.IssueClosed, nil)
	f.store.AddMergeRequest(m.ID, model.MergeRequestMerged)
	f.store.AddMergeRequest(m.ID, model.MergeRequestOpened)
	rel := &model.Release{ProjectID: 1, Tag: "v2.0.0", ReleasedAt: date(2024, 3, 5)}
	_ = f.store.CreateRelease(ctx, rel)
	_ = f.store.AssociateRelease(ctx, rel.ID, m.ID)

	fresh, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	cached, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress (cached): %v", err)
	}
	uncached, err := NewService(f.store, cache.NewMemoryCache(time.Hour), zap.NewNop()).
		WithClock(func() time.Time { return today }).
		GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress (cold): %v", err)
	}

	if !reflect.DeepEqual(fresh, cached) || !reflect.DeepEqual(fresh, uncached) {
		t.Fatalf("results differ:\nfresh    %+v\ncached   %+v\nuncached %+v", fresh, cached, uncached)
	}
	if len(fresh.Releases) != 1 || fresh.Releases[0].Status != model.ReleaseReleased {
		t.Fatalf("releases = %+v", fresh.Releases)
	}
	if fresh.MergedRequests != 1 || fresh.TotalRequests != 2 {
		t.Fatalf("merge requests = %d/%d", fresh.MergedRequests, fresh.TotalRequests)
	}
}

func TestStaleSnapshotIsNotServed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)
	f.store.AddIssue(m.ID, model.IssueOpened, nil)

	// Planted at an older version with counts that no longer hold.
	f.cache.Put(model.ProgressSnapshot{
		MilestoneID: m.ID, State: model.StateActive, TotalDays: 30,
		CompletedIssues: 9, TotalIssues: 9, Version: m.ProgressVersion - 1,
	})
	got, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if got.TotalIssues != 1 || got.Version != m.ProgressVersion {
		t.Fatalf("stale snapshot served: %+v", got)
	}
}

func TestCacheDisagreeingWithStoreIsInconsistent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)

	f.cache.Put(model.ProgressSnapshot{
		MilestoneID: m.ID, State: model.StateClosed, TotalDays: 30, Version: m.ProgressVersion,
	})
	_, err := f.svc.GetProgress(ctx, m.ID)
	if !errors.Is(err, model.ErrInconsistentState) {
		t.Fatalf("err = %v, want ErrInconsistentState", err)
	}
	if _, ok, _ := f.cache.Get(ctx, m.ID); ok {
		t.Fatal("inconsistent entry must be evicted")
	}

	got, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil || got.State != model.StateActive {
		t.Fatalf("next read = %+v, %v", got, err)
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, int64) (*model.ProgressSnapshot, bool, error) {
	return nil, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, *model.ProgressSnapshot) error {
	return errors.New("cache down")
}
func (brokenCache) Evict(context.Context, int64) error { return errors.New("cache down") }

func TestCacheFailureFallsBackToStore(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	m := &model.Milestone{Title: "m", Scope: model.GroupScope(2)}
	_ = store.CreateMilestone(ctx, m)
	store.AddIssue(m.ID, model.IssueClosed, nil)

	svc := NewService(store, brokenCache{}, zap.NewNop())
	got, err := svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if got.CompletedIssues != 1 {
		t.Fatalf("got = %+v", got)
	}
	if err := svc.Invalidate(ctx, m.ID); err != nil {
		t.Fatalf("Invalidate with broken cache: %v", err)
	}
}

func TestWeightedProgressFollowsScopeSetting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)
	five, three := 5, 3
	f.store.AddIssue(m.ID, model.IssueClosed, &five)
	f.store.AddIssue(m.ID, model.IssueOpened, &three)
	f.store.AddIssue(m.ID, model.IssueOpened, nil)

	got, _ := f.svc.GetProgress(ctx, m.ID)
	if got.Weighted || got.TotalWeight != 0 {
		t.Fatalf("weighted without setting: %+v", got)
	}

	_ = f.store.SetWeighted(ctx, m.Scope, true)
	_ = f.svc.Invalidate(ctx, m.ID)
	got, _ = f.svc.GetProgress(ctx, m.ID)
	if !got.Weighted || got.CompletedWeight != 5 || got.TotalWeight != 9 {
		t.Fatalf("weighted = %+v", got)
	}
}

func TestMissingMilestone(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.GetProgress(context.Background(), 77); !errors.Is(err, model.ErrMilestoneNotFound) {
		t.Fatalf("err = %v", err)
	}
}

type skewedStore struct {
	*memory.Store
}

func (skewedStore) IssueStats(context.Context, int64) (model.IssueStats, error) {
	return model.IssueStats{Total: 2, Completed: 3}, nil
}

func TestOutOfRangeCountsAreInconsistent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	m := &model.Milestone{Title: "m", Scope: model.ProjectScope(1)}
	_ = store.CreateMilestone(ctx, m)

	c := cache.NewMemoryCache(time.Hour)
	svc := NewService(skewedStore{store}, c, zap.NewNop())
	if _, err := svc.GetProgress(ctx, m.ID); !errors.Is(err, model.ErrInconsistentState) {
		t.Fatalf("err = %v, want ErrInconsistentState", err)
	}
	if _, ok, _ := c.Get(ctx, m.ID); ok {
		t.Fatal("out of range snapshot must not be cached")
	}
}

func TestPendingCascadeOnlyForClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)
	f.store.AddIssue(m.ID, model.IssueOpened, nil)

	got, _ := f.svc.GetProgress(ctx, m.ID)
	if got.PendingCascade != 0 {
		t.Fatalf("active milestone pending = %d", got.PendingCascade)
	}

	_, _ = f.store.CloseMilestone(ctx, m.ID, today, nil)
	got, _ = f.svc.GetProgress(ctx, m.ID)
	if got.State != model.StateClosed || got.PendingCascade != 1 {
		t.Fatalf("closed = %+v", got)
	}
}

func TestPercentIsAFraction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.milestone(t)
	for i := 0; i < 10; i++ {
		state := model.IssueOpened
		if i < 4 {
			state = model.IssueClosed
		}
		f.store.AddIssue(m.ID, state, nil)
	}

	got, err := f.svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if got.CompletedIssues != 4 || got.TotalIssues != 10 || got.Percent() != 0.4 {
		t.Fatalf("progress = %d/%d percent %v, want 0.4", got.CompletedIssues, got.TotalIssues, got.Percent())
	}
}

func TestCachedSnapshotFollowsClockAcrossMidnight(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	m := &model.Milestone{
		Title:     "v3.0",
		Scope:     model.ProjectScope(1),
		StartDate: date(2024, 3, 1),
		DueDate:   date(2024, 3, 31),
	}
	if err := store.CreateMilestone(ctx, m); err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	releasedAt := time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC)
	rel := &model.Release{ProjectID: 1, Tag: "v3.0.0", ReleasedAt: &releasedAt}
	_ = store.CreateRelease(ctx, rel)
	_ = store.AssociateRelease(ctx, rel.ID, m.ID)

	now := time.Date(2024, 3, 10, 23, 58, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewService(store, cache.NewMemoryCache(time.Hour), zap.NewNop()).WithClock(clock)

	before, err := svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if before.ElapsedDays != 9 || before.Releases[0].Status != model.ReleaseUpcoming {
		t.Fatalf("before midnight = %+v", before)
	}

	now = time.Date(2024, 3, 11, 0, 2, 0, 0, time.UTC)
	cached, err := svc.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress (cached): %v", err)
	}
	fresh, err := NewService(store, cache.NewMemoryCache(time.Hour), zap.NewNop()).WithClock(clock).GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress (cold): %v", err)
	}
	if !reflect.DeepEqual(cached, fresh) {
		t.Fatalf("cached and fresh differ after midnight:\ncached %+v\nfresh  %+v", cached, fresh)
	}
	if cached.ElapsedDays != 10 || cached.Releases[0].Status != model.ReleaseReleased {
		t.Fatalf("after midnight = %+v", cached)
	}
}
