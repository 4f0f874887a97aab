package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/repository/memory"
	"milestone-service/pkg/util"
)

type recordingNotifier struct {
	mu   sync.Mutex
	fail error
	sent []model.CascadeJob
}

func (n *recordingNotifier) Notify(_ context.Context, event string, job model.CascadeJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	if event != EventMilestoneClosed {
		return errors.New("unexpected event " + event)
	}
	n.sent = append(n.sent, job)
	return nil
}

type nopEvicter struct{ evicted int }

func (e *nopEvicter) Evict(context.Context, int64) { e.evicted++ }

type flakyStore struct {
	*memory.Store
	failures int
	calls    int
}

func (f *flakyStore) StampMilestoneClosed(ctx context.Context, id int64, at time.Time) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("connection reset by peer")
	}
	return f.Store.StampMilestoneClosed(ctx, id, at)
}

var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffPolicy: retry.BackoffExponential}

func setup(t *testing.T) (*memory.Store, model.CascadeJob) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	m := &model.Milestone{Title: "m", Scope: model.ProjectScope(1)}
	if err := store.CreateMilestone(ctx, m); err != nil {
		t.Fatal(err)
	}
	store.AddIssue(m.ID, model.IssueOpened, nil)
	store.AddIssue(m.ID, model.IssueClosed, nil)
	store.AddMergeRequest(m.ID, model.MergeRequestOpened)
	at := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	if _, err := store.CloseMilestone(ctx, m.ID, at, nil); err != nil {
		t.Fatal(err)
	}
	return store, model.CascadeJob{JobID: "job-1", MilestoneID: m.ID, ClosedAt: at}
}

func TestRunStampsNotifiesAndIsIdempotent(t *testing.T) {
	store, job := setup(t)
	notifier := &recordingNotifier{}
	ev := &nopEvicter{}
	runner := NewRunner(store, ev, notifier, util.NewLocalDeduper(time.Hour), zap.NewNop()).WithRetry(fastRetry)
	ctx := context.Background()

	before, _ := store.GetMilestone(ctx, job.MilestoneID)
	res, err := runner.Run(ctx, job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stamped != 3 || !res.Notified {
		t.Fatalf("first run = %+v", res)
	}
	after, _ := store.GetMilestone(ctx, job.MilestoneID)
	if after.ProgressVersion <= before.ProgressVersion || ev.evicted != 1 {
		t.Fatalf("progress not refreshed: version %d -> %d, evicted %d", before.ProgressVersion, after.ProgressVersion, ev.evicted)
	}

	res, err = runner.Run(ctx, job)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Stamped != 0 || res.Notified {
		t.Fatalf("second run = %+v", res)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
	if pending, _ := store.PendingCascade(ctx, job.MilestoneID); pending != 0 {
		t.Fatalf("pending = %d", pending)
	}
}

func TestRunRetriesTransientStampFailure(t *testing.T) {
	store, job := setup(t)
	flaky := &flakyStore{Store: store, failures: 2}
	runner := NewRunner(flaky, &nopEvicter{}, &recordingNotifier{}, util.NewLocalDeduper(time.Hour), zap.NewNop()).WithRetry(fastRetry)

	res, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if flaky.calls != 3 || res.Stamped != 3 {
		t.Fatalf("calls = %d, stamped = %d", flaky.calls, res.Stamped)
	}
}

func TestRunReportsPersistentFailure(t *testing.T) {
	store, job := setup(t)
	flaky := &flakyStore{Store: store, failures: 100}
	notifier := &recordingNotifier{}
	runner := NewRunner(flaky, &nopEvicter{}, notifier, util.NewLocalDeduper(time.Hour), zap.NewNop()).WithRetry(fastRetry)

	_, err := runner.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(notifier.sent) != 0 {
		t.Fatal("failed cascade must not notify")
	}
}

func TestFailedNotificationIsRetriedOnNextRun(t *testing.T) {
	store, job := setup(t)
	notifier := &recordingNotifier{fail: errors.New("exchange unavailable")}
	runner := NewRunner(store, &nopEvicter{}, notifier, util.NewLocalDeduper(time.Hour), zap.NewNop()).WithRetry(fastRetry)
	ctx := context.Background()

	res, err := runner.Run(ctx, job)
	if err != nil {
		t.Fatalf("notification failure must not fail the cascade: %v", err)
	}
	if res.Notified {
		t.Fatal("reported notified despite failure")
	}

	notifier.fail = nil
	res, _ = runner.Run(ctx, job)
	if !res.Notified || len(notifier.sent) != 1 {
		t.Fatalf("retry did not notify: %+v, sent %d", res, len(notifier.sent))
	}
}
