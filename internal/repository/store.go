package repository

import (
	"context"
	"errors"
	"time"

	"milestone-service/internal/model"
)

// ErrFailureNotFound is returned when resolving an unknown or already
// resolved cascade failure.
var ErrFailureNotFound = errors.New("cascade failure not found")

type MilestoneStore interface {
	// CreateMilestone inserts m and fills its generated fields. A title that
	// already exists in the scope (case-insensitive) yields ErrDuplicateTitle.
	CreateMilestone(ctx context.Context, m *model.Milestone) error
	GetMilestone(ctx context.Context, id int64) (*model.Milestone, error)
	ListMilestones(ctx context.Context, scope model.Scope) ([]*model.Milestone, error)
	// CloseMilestone flips an active milestone to closed and bumps its
	// progress version. When job is non-nil the cascade job is enqueued in
	// the same transaction.
	CloseMilestone(ctx context.Context, id int64, closedAt time.Time, job *model.CascadeJob) (*model.Milestone, error)
	BumpProgressVersion(ctx context.Context, id int64) (int64, error)
}

type ReleaseStore interface {
	CreateRelease(ctx context.Context, r *model.Release) error
	GetRelease(ctx context.Context, id int64) (*model.Release, error)
	// AssociateRelease links a release to a milestone only if the release is
	// not linked yet, and bumps the milestone's progress version.
	AssociateRelease(ctx context.Context, releaseID, milestoneID int64) error
	ListReleases(ctx context.Context, milestoneID int64) ([]*model.Release, error)
}

type DependentStore interface {
	CountDependents(ctx context.Context, milestoneID int64) (int64, error)
	IssueStats(ctx context.Context, milestoneID int64) (model.IssueStats, error)
	MergeRequestStats(ctx context.Context, milestoneID int64) (model.MergeRequestStats, error)
	// PendingCascade counts dependents not yet stamped with the closure.
	PendingCascade(ctx context.Context, milestoneID int64) (int64, error)
	// StampMilestoneClosed stamps unstamped dependents and returns how many
	// rows changed. Safe to repeat.
	StampMilestoneClosed(ctx context.Context, milestoneID int64, closedAt time.Time) (int64, error)
}

type SettingsStore interface {
	WeightedEnabled(ctx context.Context, scope model.Scope) (bool, error)
	SetWeighted(ctx context.Context, scope model.Scope, enabled bool) error
}

type FailureStore interface {
	RecordFailure(ctx context.Context, f *model.CascadeFailure) error
	ListFailures(ctx context.Context, limit int) ([]*model.CascadeFailure, error)
	ResolveFailure(ctx context.Context, id int64) error
}

// CascadeQueue durably enqueues a cascade job outside a closure transaction.
type CascadeQueue interface {
	EnqueueCascade(ctx context.Context, job model.CascadeJob) error
}

// Store is everything the services need from persistence.
type Store interface {
	MilestoneStore
	ReleaseStore
	DependentStore
	SettingsStore
	FailureStore
	CascadeQueue
}
