package closure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"go.uber.org/zap"

	"milestone-service/internal/cache"
	"milestone-service/internal/model"
	"milestone-service/internal/repository/memory"
	"milestone-service/internal/service/cascade"
	"milestone-service/internal/service/progress"
	"milestone-service/pkg/util"
)

var now = time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify(context.Context, string, model.CascadeJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

type fixture struct {
	store    *memory.Store
	progress *progress.Service
	notifier *countingNotifier
	svc      *Service
}

func newFixture(threshold int) *fixture {
	store := memory.New()
	prog := progress.NewService(store, cache.NewMemoryCache(time.Hour), zap.NewNop()).
		WithClock(func() time.Time { return now })
	notifier := &countingNotifier{}
	runner := cascade.NewRunner(store, prog, notifier, util.NewLocalDeduper(time.Hour), zap.NewNop()).
		WithRetry(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffPolicy: retry.BackoffExponential})
	svc := NewService(store, runner, prog, threshold, zap.NewNop()).WithClock(func() time.Time { return now })
	return &fixture{store: store, progress: prog, notifier: notifier, svc: svc}
}

func (f *fixture) milestoneWithDependents(t *testing.T, issues int) *model.Milestone {
	t.Helper()
	m := &model.Milestone{Title: "release train", Scope: model.ProjectScope(1)}
	if err := f.store.CreateMilestone(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < issues; i++ {
		f.store.AddIssue(m.ID, model.IssueOpened, nil)
	}
	return m
}

func TestCloseWithFewDependentsRunsInline(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	m := f.milestoneWithDependents(t, 3)

	c, err := f.svc.CloseMilestone(ctx, m.ID, 42)
	if err != nil {
		t.Fatalf("CloseMilestone: %v", err)
	}
	if c.Mode != model.CascadeInline || c.State != model.StateClosed || !c.ClosedAt.Equal(now) || c.JobID == "" {
		t.Fatalf("closure = %+v", c)
	}
	if pending, _ := f.store.PendingCascade(ctx, m.ID); pending != 0 {
		t.Fatalf("pending after inline cascade = %d", pending)
	}
	if f.notifier.count != 1 {
		t.Fatalf("notifications = %d", f.notifier.count)
	}
	if jobs := f.store.TakeJobs(); len(jobs) != 0 {
		t.Fatalf("inline close queued jobs: %+v", jobs)
	}
}

func TestCloseWithManyDependentsDefers(t *testing.T) {
	f := newFixture(2)
	ctx := context.Background()
	m := f.milestoneWithDependents(t, 3)

	c, err := f.svc.CloseMilestone(ctx, m.ID, 42)
	if err != nil {
		t.Fatalf("CloseMilestone: %v", err)
	}
	if c.Mode != model.CascadeDeferred || c.Dependents != 3 {
		t.Fatalf("closure = %+v", c)
	}

	got, _ := f.store.GetMilestone(ctx, m.ID)
	if got.State != model.StateClosed {
		t.Fatalf("state = %s", got.State)
	}
	snap, err := f.progress.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if snap.State != model.StateClosed || snap.PendingCascade != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	jobs := f.store.TakeJobs()
	if len(jobs) != 1 || jobs[0].JobID != c.JobID || jobs[0].ActorID != 42 || !jobs[0].ClosedAt.Equal(now) {
		t.Fatalf("jobs = %+v", jobs)
	}
	if f.notifier.count != 0 {
		t.Fatal("deferred close notified before the cascade ran")
	}
}

func TestThresholdBoundaryIsInline(t *testing.T) {
	f := newFixture(3)
	m := f.milestoneWithDependents(t, 3)
	c, err := f.svc.CloseMilestone(context.Background(), m.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != model.CascadeInline {
		t.Fatalf("mode = %s, want inline at exactly the threshold", c.Mode)
	}
}

func TestCloseTwiceIsNotActive(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	m := f.milestoneWithDependents(t, 1)

	first, err := f.svc.CloseMilestone(ctx, m.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CloseMilestone(ctx, m.ID, 1); !errors.Is(err, model.ErrNotActive) {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
	got, _ := f.store.GetMilestone(ctx, m.ID)
	if !got.ClosedAt.Equal(first.ClosedAt) {
		t.Fatalf("closed_at changed: %v -> %v", first.ClosedAt, got.ClosedAt)
	}
}

func TestConcurrentClosesOneWins(t *testing.T) {
	f := newFixture(100)
	m := f.milestoneWithDependents(t, 2)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CloseMilestone(context.Background(), m.ID, int64(i+1))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, model.ErrNotActive):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	if f.notifier.count != 1 {
		t.Fatalf("notifications = %d", f.notifier.count)
	}
}

func TestCloseMissingMilestone(t *testing.T) {
	f := newFixture(100)
	if _, err := f.svc.CloseMilestone(context.Background(), 404, 1); !errors.Is(err, model.ErrMilestoneNotFound) {
		t.Fatalf("err = %v", err)
	}
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, model.CascadeJob) (cascade.Result, error) {
	return cascade.Result{}, errors.New("stamp: connection refused")
}

func TestInlineFailureFallsBackToDeferred(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	m := &model.Milestone{Title: "m", Scope: model.GroupScope(5)}
	_ = store.CreateMilestone(ctx, m)
	store.AddIssue(m.ID, model.IssueOpened, nil)
	prog := progress.NewService(store, cache.NewMemoryCache(time.Hour), zap.NewNop())

	svc := NewService(store, failingRunner{}, prog, 100, zap.NewNop())
	c, err := svc.CloseMilestone(ctx, m.ID, 7)
	if err != nil {
		t.Fatalf("CloseMilestone: %v", err)
	}
	if c.Mode != model.CascadeDeferred || c.CascadeError == "" {
		t.Fatalf("closure = %+v", c)
	}
	got, _ := store.GetMilestone(ctx, m.ID)
	if got.State != model.StateClosed {
		t.Fatal("milestone must stay closed after a cascade failure")
	}
	if jobs := store.TakeJobs(); len(jobs) != 1 || jobs[0].JobID != c.JobID {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestCloseEvictsCachedProgress(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	m := f.milestoneWithDependents(t, 1)

	before, err := f.progress.GetProgress(ctx, m.ID)
	if err != nil || before.State != model.StateActive {
		t.Fatalf("before = %+v, %v", before, err)
	}
	if _, err := f.svc.CloseMilestone(ctx, m.ID, 1); err != nil {
		t.Fatal(err)
	}
	after, err := f.progress.GetProgress(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if after.State != model.StateClosed || after.PendingCascade != 0 {
		t.Fatalf("after = %+v", after)
	}
}

func TestDefaultThreshold(t *testing.T) {
	svc := NewService(memory.New(), failingRunner{}, nil, 0, zap.NewNop())
	if svc.threshold != DefaultAsyncThreshold {
		t.Fatalf("threshold = %d", svc.threshold)
	}
}
