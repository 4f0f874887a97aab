// Package association creates milestones and releases and links releases
// to milestones.
package association

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
)

type Store interface {
	CreateMilestone(ctx context.Context, m *model.Milestone) error
	GetMilestone(ctx context.Context, id int64) (*model.Milestone, error)
	ListMilestones(ctx context.Context, scope model.Scope) ([]*model.Milestone, error)
	CreateRelease(ctx context.Context, r *model.Release) error
	AssociateRelease(ctx context.Context, releaseID, milestoneID int64) error
}

// Evicter drops cached progress for a milestone.
type Evicter interface {
	Evict(ctx context.Context, milestoneID int64)
}

type Service struct {
	store   Store
	evicter Evicter
	logger  *zap.Logger
}

func NewService(store Store, evicter Evicter, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		evicter: evicter,
		logger:  logger,
	}
}

type CreateMilestoneInput struct {
	Title       string
	Description string
	StartDate   *time.Time
	DueDate     *time.Time
	Scope       model.Scope
}

// CreateMilestone validates the input and inserts an active milestone. Title
// uniqueness within the scope is decided by the store in a single write.
func (s *Service) CreateMilestone(ctx context.Context, in CreateMilestoneInput) (*model.Milestone, error) {
	m, err := buildMilestone(in)
	if err == nil {
		err = s.store.CreateMilestone(ctx, m)
	}
	metrics.RecordOperation("create", resultOf(err))
	if err != nil {
		logger.WithTrace(ctx, s.logger).Info("CreateMilestone rejected",
			zap.String("title", in.Title),
			zap.String("reason", model.Kind(err)),
			zap.Error(err),
		)
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Milestone created",
		zap.Int64("milestone_id", m.ID),
		zap.String("scope", m.Scope.String()),
	)
	return m, nil
}

func buildMilestone(in CreateMilestoneInput) (*model.Milestone, error) {
	title, err := model.ValidateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := in.Scope.Validate(); err != nil {
		return nil, err
	}
	start, due := dateOnly(in.StartDate), dateOnly(in.DueDate)
	if err := model.ValidateDateRange(start, due); err != nil {
		return nil, err
	}
	return &model.Milestone{
		Title:       title,
		Description: in.Description,
		StartDate:   start,
		DueDate:     due,
		Scope:       in.Scope,
		State:       model.StateActive,
	}, nil
}

func (s *Service) GetMilestone(ctx context.Context, id int64) (*model.Milestone, error) {
	return s.store.GetMilestone(ctx, id)
}

func (s *Service) ListMilestones(ctx context.Context, scope model.Scope) ([]*model.Milestone, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListMilestones(ctx, scope)
}

type CreateReleaseInput struct {
	ProjectID   int64
	Tag         string
	Description string
	ReleasedAt  *time.Time
}

func (s *Service) CreateRelease(ctx context.Context, in CreateReleaseInput) (*model.Release, error) {
	tag := strings.TrimSpace(in.Tag)
	if in.ProjectID <= 0 || tag == "" {
		return nil, model.ErrInvalidRelease
	}
	r := &model.Release{
		ProjectID:   in.ProjectID,
		Tag:         tag,
		Description: in.Description,
		ReleasedAt:  in.ReleasedAt,
	}
	if err := s.store.CreateRelease(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AssociateRelease links an unlinked release to a milestone. Of concurrent
// calls for the same release exactly one succeeds; the rest get
// ErrAlreadyAssociated.
func (s *Service) AssociateRelease(ctx context.Context, releaseID, milestoneID int64) (*model.Association, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("release_id", releaseID),
		zap.Int64("milestone_id", milestoneID),
	)

	err := s.store.AssociateRelease(ctx, releaseID, milestoneID)
	metrics.RecordOperation("associate", resultOf(err))
	if err != nil {
		log.Info("AssociateRelease rejected", zap.String("reason", model.Kind(err)), zap.Error(err))
		return nil, err
	}

	s.evicter.Evict(ctx, milestoneID)
	log.Info("Release associated")
	return &model.Association{ReleaseID: releaseID, MilestoneID: milestoneID}, nil
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.DateOf(*t)
	return &d
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	return model.Kind(err)
}
