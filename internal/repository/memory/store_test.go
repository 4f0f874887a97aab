package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"milestone-service/internal/model"
	"milestone-service/internal/repository"
)

func newMilestone(t *testing.T, s *Store, title string, scope model.Scope) *model.Milestone {
	t.Helper()
	m := &model.Milestone{Title: title, Scope: scope}
	if err := s.CreateMilestone(context.Background(), m); err != nil {
		t.Fatalf("CreateMilestone(%q): %v", title, err)
	}
	return m
}

func TestCreateMilestoneTitleUniquePerScope(t *testing.T) {
	s := New()
	ctx := context.Background()
	newMilestone(t, s, "v1.0", model.ProjectScope(1))

	err := s.CreateMilestone(ctx, &model.Milestone{Title: "V1.0", Scope: model.ProjectScope(1)})
	if !errors.Is(err, model.ErrDuplicateTitle) {
		t.Fatalf("same scope: err = %v, want ErrDuplicateTitle", err)
	}
	if err := s.CreateMilestone(ctx, &model.Milestone{Title: "v1.0", Scope: model.ProjectScope(2)}); err != nil {
		t.Fatalf("other project: %v", err)
	}
	if err := s.CreateMilestone(ctx, &model.Milestone{Title: "v1.0", Scope: model.GroupScope(1)}); err != nil {
		t.Fatalf("group with same id: %v", err)
	}
}

func TestConcurrentCreateSameTitle(t *testing.T) {
	s := New()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateMilestone(context.Background(), &model.Milestone{Title: "race", Scope: model.ProjectScope(1)})
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, model.ErrDuplicateTitle):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("successful creates = %d, want 1", wins.Load())
	}
}

func TestConcurrentAssociateSameRelease(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newMilestone(t, s, "a", model.ProjectScope(1))
	b := newMilestone(t, s, "b", model.ProjectScope(1))
	rel := &model.Release{ProjectID: 1, Tag: "v1"}
	if err := s.CreateRelease(ctx, rel); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	results := make(chan error, 2)
	for _, mid := range []int64{a.ID, b.ID} {
		go func(mid int64) { results <- s.AssociateRelease(ctx, rel.ID, mid) }(mid)
	}
	var ok, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrAlreadyAssociated):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}

	got, _ := s.GetRelease(ctx, rel.ID)
	winner, _ := s.GetMilestone(ctx, *got.MilestoneID)
	if winner.ProgressVersion != 2 {
		t.Fatalf("winner version = %d, want 2", winner.ProgressVersion)
	}
}

func TestAssociateErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMilestone(t, s, "m", model.ProjectScope(1))
	rel := &model.Release{ProjectID: 1, Tag: "v1"}
	_ = s.CreateRelease(ctx, rel)

	linked := &model.Release{ProjectID: 1, Tag: "v2"}
	_ = s.CreateRelease(ctx, linked)
	if err := s.AssociateRelease(ctx, linked.ID, m.ID); err != nil {
		t.Fatalf("AssociateRelease: %v", err)
	}

	tests := []struct {
		name      string
		releaseID int64
		milestone int64
		want      error
	}{
		{"unknown release", 999, m.ID, model.ErrReleaseNotFound},
		{"unknown release and milestone", 999, 999, model.ErrReleaseNotFound},
		{"unknown milestone", rel.ID, 999, model.ErrMilestoneNotFound},
		{"linked release, unknown milestone", linked.ID, 999, model.ErrMilestoneNotFound},
		{"linked release", linked.ID, m.ID, model.ErrAlreadyAssociated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AssociateRelease(ctx, tt.releaseID, tt.milestone); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	got, _ := s.GetRelease(ctx, rel.ID)
	if got.MilestoneID != nil {
		t.Fatal("failed association must not link the release")
	}
}

func TestCloseMilestoneOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMilestone(t, s, "m", model.GroupScope(3))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	job := &model.CascadeJob{JobID: "j1", MilestoneID: m.ID, ClosedAt: at}
	closed, err := s.CloseMilestone(ctx, m.ID, at, job)
	if err != nil {
		t.Fatalf("CloseMilestone: %v", err)
	}
	if closed.State != model.StateClosed || !closed.ClosedAt.Equal(at) || closed.ProgressVersion != 2 {
		t.Fatalf("closed = %+v", closed)
	}
	if _, err := s.CloseMilestone(ctx, m.ID, at, nil); !errors.Is(err, model.ErrNotActive) {
		t.Fatalf("second close: %v", err)
	}
	if _, err := s.CloseMilestone(ctx, 404, at, nil); !errors.Is(err, model.ErrMilestoneNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if jobs := s.TakeJobs(); len(jobs) != 1 || jobs[0].JobID != "j1" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestStampIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMilestone(t, s, "m", model.ProjectScope(1))
	s.AddIssue(m.ID, model.IssueOpened, nil)
	s.AddMergeRequest(m.ID, model.MergeRequestMerged)
	at := time.Now()

	if n, _ := s.StampMilestoneClosed(ctx, m.ID, at); n != 2 {
		t.Fatalf("first stamp = %d, want 2", n)
	}
	if n, _ := s.StampMilestoneClosed(ctx, m.ID, at); n != 0 {
		t.Fatalf("second stamp = %d, want 0", n)
	}
	if n, _ := s.PendingCascade(ctx, m.ID); n != 0 {
		t.Fatalf("pending = %d", n)
	}
}

func TestIssueStatsWeights(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMilestone(t, s, "m", model.ProjectScope(1))
	three, zero := 3, 0
	s.AddIssue(m.ID, model.IssueClosed, &three)
	s.AddIssue(m.ID, model.IssueOpened, nil)
	s.AddIssue(m.ID, model.IssueClosed, &zero)

	st, _ := s.IssueStats(ctx, m.ID)
	want := model.IssueStats{Total: 3, Completed: 2, TotalWeight: 4, CompletedWeight: 3}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}

func TestFailures(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := &model.CascadeFailure{JobID: "j", MilestoneID: 1, Attempts: 5, LastError: "boom"}
	_ = s.RecordFailure(ctx, f)

	list, _ := s.ListFailures(ctx, 10)
	if len(list) != 1 || list[0].JobID != "j" {
		t.Fatalf("list = %+v", list)
	}
	if err := s.ResolveFailure(ctx, f.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := s.ResolveFailure(ctx, f.ID); !errors.Is(err, repository.ErrFailureNotFound) {
		t.Fatalf("resolve twice: %v", err)
	}
	if list, _ := s.ListFailures(ctx, 10); len(list) != 0 {
		t.Fatalf("resolved failure still listed: %+v", list)
	}
}
