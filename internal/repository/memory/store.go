// Package memory is an in-process Store with the same conditional-write
// semantics as the Postgres repositories. Used by tests and by
// storage.driver=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"milestone-service/internal/model"
	"milestone-service/internal/repository"
)

type titleKey struct {
	kind  string
	id    int64
	title string
}

type tagKey struct {
	projectID int64
	tag       string
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextID       int64
	milestones   map[int64]*model.Milestone
	titles       map[titleKey]int64
	releases     map[int64]*model.Release
	tags         map[tagKey]int64
	issues       map[int64]*model.Issue
	mergeReqs    map[int64]*model.MergeRequest
	weighted     map[string]bool
	failures     map[int64]*model.CascadeFailure
	pendingJobs  []model.CascadeJob
	jobsNotifier chan struct{}
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:          time.Now,
		milestones:   make(map[int64]*model.Milestone),
		titles:       make(map[titleKey]int64),
		releases:     make(map[int64]*model.Release),
		tags:         make(map[tagKey]int64),
		issues:       make(map[int64]*model.Issue),
		mergeReqs:    make(map[int64]*model.MergeRequest),
		weighted:     make(map[string]bool),
		failures:     make(map[int64]*model.CascadeFailure),
		jobsNotifier: make(chan struct{}, 1),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateMilestone(_ context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := m.Scope.Validate(); err != nil {
		return err
	}
	key := titleKey{kind: m.Scope.Kind(), id: m.Scope.ID(), title: strings.ToLower(m.Title)}
	if _, exists := s.titles[key]; exists {
		return fmt.Errorf("create milestone %q in %s: %w", m.Title, m.Scope, model.ErrDuplicateTitle)
	}

	now := s.now()
	m.ID = s.id()
	m.State = model.StateActive
	m.ClosedAt = nil
	m.ProgressVersion = 1
	m.CreatedAt = now
	m.UpdatedAt = now

	s.titles[key] = m.ID
	s.milestones[m.ID] = cloneMilestone(m)
	return nil
}

func (s *Store) GetMilestone(_ context.Context, id int64) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, fmt.Errorf("milestone %d: %w", id, model.ErrMilestoneNotFound)
	}
	return cloneMilestone(m), nil
}

func (s *Store) ListMilestones(_ context.Context, scope model.Scope) ([]*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Milestone
	for _, m := range s.milestones {
		if m.Scope.Kind() == scope.Kind() && m.Scope.ID() == scope.ID() {
			out = append(out, cloneMilestone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CloseMilestone(_ context.Context, id int64, closedAt time.Time, job *model.CascadeJob) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.milestones[id]
	if !ok {
		return nil, fmt.Errorf("milestone %d: %w", id, model.ErrMilestoneNotFound)
	}
	if m.State != model.StateActive {
		return nil, fmt.Errorf("close milestone %d: %w", id, model.ErrNotActive)
	}
	at := closedAt
	m.State = model.StateClosed
	m.ClosedAt = &at
	m.ProgressVersion++
	m.UpdatedAt = s.now()
	if job != nil {
		s.enqueueLocked(*job)
	}
	return cloneMilestone(m), nil
}

func (s *Store) BumpProgressVersion(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return 0, fmt.Errorf("milestone %d: %w", id, model.ErrMilestoneNotFound)
	}
	m.ProgressVersion++
	return m.ProgressVersion, nil
}

func (s *Store) EnqueueCascade(_ context.Context, job model.CascadeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(job)
	return nil
}

func (s *Store) enqueueLocked(job model.CascadeJob) {
	s.pendingJobs = append(s.pendingJobs, job)
	select {
	case s.jobsNotifier <- struct{}{}:
	default:
	}
}

// TakeJobs drains the enqueued cascade jobs.
func (s *Store) TakeJobs() []model.CascadeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.pendingJobs
	s.pendingJobs = nil
	return jobs
}

// JobsReady is signalled whenever a cascade job is enqueued.
func (s *Store) JobsReady() <-chan struct{} {
	return s.jobsNotifier
}

func (s *Store) CreateRelease(_ context.Context, r *model.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tagKey{projectID: r.ProjectID, tag: r.Tag}
	if _, exists := s.tags[key]; exists {
		return fmt.Errorf("create release %q: %w", r.Tag, model.ErrDuplicateTag)
	}
	r.ID = s.id()
	r.MilestoneID = nil
	r.CreatedAt = s.now()
	s.tags[key] = r.ID
	s.releases[r.ID] = cloneRelease(r)
	return nil
}

func (s *Store) GetRelease(_ context.Context, id int64) (*model.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.releases[id]
	if !ok {
		return nil, fmt.Errorf("release %d: %w", id, model.ErrReleaseNotFound)
	}
	return cloneRelease(r), nil
}

func (s *Store) AssociateRelease(_ context.Context, releaseID, milestoneID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.releases[releaseID]
	if !ok {
		return fmt.Errorf("associate release %d: %w", releaseID, model.ErrReleaseNotFound)
	}
	m, ok := s.milestones[milestoneID]
	if !ok {
		return fmt.Errorf("associate release %d: %w", releaseID, model.ErrMilestoneNotFound)
	}
	if r.MilestoneID != nil {
		return fmt.Errorf("associate release %d: %w", releaseID, model.ErrAlreadyAssociated)
	}
	mid := milestoneID
	r.MilestoneID = &mid
	m.ProgressVersion++
	return nil
}

func (s *Store) ListReleases(_ context.Context, milestoneID int64) ([]*model.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Release
	for _, r := range s.releases {
		if r.MilestoneID != nil && *r.MilestoneID == milestoneID {
			out = append(out, cloneRelease(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddIssue stands in for the issue tracker writing an issue.
func (s *Store) AddIssue(milestoneID int64, state string, weight *int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	mid := milestoneID
	issue := &model.Issue{ID: s.id(), MilestoneID: &mid, State: state, Weight: weight}
	s.issues[issue.ID] = issue
	return issue.ID
}

// SetIssueState changes an issue without touching the milestone, as an
// external writer would.
func (s *Store) SetIssueState(id int64, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue, ok := s.issues[id]; ok {
		issue.State = state
	}
}

func (s *Store) AddMergeRequest(milestoneID int64, state string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	mid := milestoneID
	mr := &model.MergeRequest{ID: s.id(), MilestoneID: &mid, State: state}
	s.mergeReqs[mr.ID] = mr
	return mr.ID
}

func (s *Store) Issue(id int64) (model.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return model.Issue{}, false
	}
	return *issue, true
}

func (s *Store) CountDependents(_ context.Context, milestoneID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, i := range s.issues {
		if belongs(i.MilestoneID, milestoneID) {
			n++
		}
	}
	for _, mr := range s.mergeReqs {
		if belongs(mr.MilestoneID, milestoneID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) IssueStats(_ context.Context, milestoneID int64) (model.IssueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.IssueStats
	for _, i := range s.issues {
		if !belongs(i.MilestoneID, milestoneID) {
			continue
		}
		w := int64(1)
		if i.Weight != nil {
			w = int64(*i.Weight)
		}
		st.Total++
		st.TotalWeight += w
		if i.State == model.IssueClosed {
			st.Completed++
			st.CompletedWeight += w
		}
	}
	return st, nil
}

func (s *Store) MergeRequestStats(_ context.Context, milestoneID int64) (model.MergeRequestStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.MergeRequestStats
	for _, mr := range s.mergeReqs {
		if !belongs(mr.MilestoneID, milestoneID) {
			continue
		}
		st.Total++
		if mr.State == model.MergeRequestMerged {
			st.Merged++
		}
	}
	return st, nil
}

func (s *Store) PendingCascade(_ context.Context, milestoneID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, i := range s.issues {
		if belongs(i.MilestoneID, milestoneID) && i.MilestoneClosedAt == nil {
			n++
		}
	}
	for _, mr := range s.mergeReqs {
		if belongs(mr.MilestoneID, milestoneID) && mr.MilestoneClosedAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) StampMilestoneClosed(_ context.Context, milestoneID int64, closedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, i := range s.issues {
		if belongs(i.MilestoneID, milestoneID) && i.MilestoneClosedAt == nil {
			at := closedAt
			i.MilestoneClosedAt = &at
			n++
		}
	}
	for _, mr := range s.mergeReqs {
		if belongs(mr.MilestoneID, milestoneID) && mr.MilestoneClosedAt == nil {
			at := closedAt
			mr.MilestoneClosedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *Store) WeightedEnabled(_ context.Context, scope model.Scope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weighted[scope.String()], nil
}

func (s *Store) SetWeighted(_ context.Context, scope model.Scope, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weighted[scope.String()] = enabled
	return nil
}

func (s *Store) RecordFailure(_ context.Context, f *model.CascadeFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	f.CreatedAt = s.now()
	cp := *f
	s.failures[f.ID] = &cp
	return nil
}

func (s *Store) ListFailures(_ context.Context, limit int) ([]*model.CascadeFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CascadeFailure
	for _, f := range s.failures {
		if !f.Resolved {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ResolveFailure(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[id]
	if !ok || f.Resolved {
		return fmt.Errorf("cascade failure %d: %w", id, repository.ErrFailureNotFound)
	}
	now := s.now()
	f.Resolved = true
	f.ResolvedAt = &now
	return nil
}

func belongs(mid *int64, milestoneID int64) bool {
	return mid != nil && *mid == milestoneID
}

func cloneMilestone(m *model.Milestone) *model.Milestone {
	cp := *m
	cp.StartDate = clonePtr(m.StartDate)
	cp.DueDate = clonePtr(m.DueDate)
	cp.ClosedAt = clonePtr(m.ClosedAt)
	cp.Scope = model.Scope{ProjectID: clonePtr(m.Scope.ProjectID), GroupID: clonePtr(m.Scope.GroupID)}
	return &cp
}

func cloneRelease(r *model.Release) *model.Release {
	cp := *r
	cp.ReleasedAt = clonePtr(r.ReleasedAt)
	cp.MilestoneID = clonePtr(r.MilestoneID)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
