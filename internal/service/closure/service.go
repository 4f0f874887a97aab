// Package closure closes milestones. Small cascades run before the call
// returns; large ones are handed to the worker through the outbox in the
// same transaction as the state change.
package closure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"milestone-service/internal/lifecycle"
	"milestone-service/internal/model"
	"milestone-service/internal/service/cascade"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/trace"
)

// DefaultAsyncThreshold is used when no threshold is configured.
const DefaultAsyncThreshold = 100

type Store interface {
	GetMilestone(ctx context.Context, id int64) (*model.Milestone, error)
	CountDependents(ctx context.Context, milestoneID int64) (int64, error)
	CloseMilestone(ctx context.Context, id int64, closedAt time.Time, job *model.CascadeJob) (*model.Milestone, error)
	EnqueueCascade(ctx context.Context, job model.CascadeJob) error
}

type Runner interface {
	Run(ctx context.Context, job model.CascadeJob) (cascade.Result, error)
}

type Evicter interface {
	Evict(ctx context.Context, milestoneID int64)
}

type Service struct {
	store     Store
	runner    Runner
	evicter   Evicter
	threshold int64
	logger    *zap.Logger
	now       func() time.Time
	newJobID  func() string
}

func NewService(store Store, runner Runner, evicter Evicter, asyncThreshold int, logger *zap.Logger) *Service {
	if asyncThreshold <= 0 {
		asyncThreshold = DefaultAsyncThreshold
	}
	return &Service{
		store:     store,
		runner:    runner,
		evicter:   evicter,
		threshold: int64(asyncThreshold),
		logger:    logger,
		now:       time.Now,
		newJobID:  uuid.NewString,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CloseMilestone moves an active milestone to closed. The returned Closure
// reports whether the cascade already ran (inline) or is queued (deferred).
// An inline cascade that fails leaves the milestone closed and is queued for
// the worker instead.
func (s *Service) CloseMilestone(ctx context.Context, milestoneID, actorID int64) (*model.Closure, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("milestone_id", milestoneID),
		zap.Int64("actor_id", actorID),
	)

	closure, job, err := s.close(ctx, milestoneID, actorID)
	if err != nil {
		metrics.RecordOperation("close", model.Kind(err))
		log.Info("CloseMilestone rejected", zap.String("reason", model.Kind(err)), zap.Error(err))
		return nil, err
	}
	metrics.RecordOperation("close", "ok")

	if closure.Mode == model.CascadeDeferred {
		log.Info("Milestone closed, cascade deferred",
			zap.String("job_id", job.JobID),
			zap.Int64("dependents", closure.Dependents),
		)
		return closure, nil
	}

	start := time.Now()
	// The cascade must not be cut short by the caller going away.
	res, err := s.runner.Run(context.WithoutCancel(ctx), job)
	if err == nil {
		metrics.RecordCascade(string(model.CascadeInline), "ok", time.Since(start))
		log.Info("Milestone closed, cascade applied", zap.Int64("stamped", res.Stamped))
		return closure, nil
	}

	metrics.RecordCascade(string(model.CascadeInline), "error", time.Since(start))
	closure.CascadeError = err.Error()
	log.Warn("Inline cascade failed, handing to worker", zap.String("job_id", job.JobID), zap.Error(err))

	if enqErr := s.store.EnqueueCascade(context.WithoutCancel(ctx), job); enqErr != nil {
		metrics.IncrementCascadeFailure()
		log.Error("Cascade could not be queued",
			zap.String("job_id", job.JobID),
			zap.NamedError("cascade_error", err),
			zap.Error(enqErr),
		)
		return closure, nil
	}
	closure.Mode = model.CascadeDeferred
	return closure, nil
}

func (s *Service) close(ctx context.Context, milestoneID, actorID int64) (*model.Closure, model.CascadeJob, error) {
	var job model.CascadeJob

	m, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, job, err
	}
	if err := lifecycle.CanClose(m); err != nil {
		return nil, job, err
	}

	dependents, err := s.store.CountDependents(ctx, milestoneID)
	if err != nil {
		return nil, job, err
	}

	closedAt := s.now().UTC()
	job = model.CascadeJob{
		JobID:       s.newJobID(),
		MilestoneID: milestoneID,
		ClosedAt:    closedAt,
		ActorID:     actorID,
		TraceID:     trace.FromContext(ctx),
	}

	mode := model.CascadeInline
	var deferred *model.CascadeJob
	if dependents > s.threshold {
		mode = model.CascadeDeferred
		deferred = &job
	}

	closed, err := s.store.CloseMilestone(ctx, milestoneID, closedAt, deferred)
	if err != nil {
		return nil, job, err
	}
	s.evicter.Evict(ctx, milestoneID)

	return &model.Closure{
		MilestoneID: closed.ID,
		State:       closed.State,
		ClosedAt:    closedAt,
		Mode:        mode,
		JobID:       job.JobID,
		Dependents:  dependents,
	}, job, nil
}
