// Package cascade applies the side effects of a milestone closure: stamp
// dependents, refresh progress and notify. Every step is safe to repeat.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/otel"
)

const (
	EventMilestoneClosed = mqcontracts.RoutingKeyMilestoneClosed
	dedupHandler         = "cascade-notify"
)

type Store interface {
	StampMilestoneClosed(ctx context.Context, milestoneID int64, closedAt time.Time) (int64, error)
	BumpProgressVersion(ctx context.Context, id int64) (int64, error)
}

type Evicter interface {
	Evict(ctx context.Context, milestoneID int64)
}

type Notifier interface {
	Notify(ctx context.Context, event string, job model.CascadeJob) error
}

// Deduper guards the notification so a retried job notifies once.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, key string) bool
	Release(ctx context.Context, handler string, key string)
}

type Result struct {
	Stamped  int64
	Notified bool
}

type Runner struct {
	store       Store
	evicter     Evicter
	notifier    Notifier
	deduper     Deduper
	logger      *zap.Logger
	retryConfig retry.Config
}

func NewRunner(store Store, evicter Evicter, notifier Notifier, deduper Deduper, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		evicter:  evicter,
		notifier: notifier,
		deduper:  deduper,
		logger:   logger,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  50 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// WithRetry overrides the retry policy around store writes.
func (r *Runner) WithRetry(cfg retry.Config) *Runner {
	r.retryConfig = cfg
	return r
}

// Run executes job. Repeating a job that already completed changes nothing
// and does not notify again.
func (r *Runner) Run(ctx context.Context, job model.CascadeJob) (Result, error) {
	ctx, span := otel.StartSpan(ctx, "cascade.run", trace.WithAttributes(
		attribute.String("cascade.job_id", job.JobID),
		attribute.Int64("milestone.id", job.MilestoneID),
	))
	defer span.End()

	res, err := r.run(ctx, job)
	otel.RecordError(span, err)
	span.SetAttributes(attribute.Int64("cascade.stamped", res.Stamped))
	return res, err
}

func (r *Runner) run(ctx context.Context, job model.CascadeJob) (Result, error) {
	log := logger.WithTrace(ctx, r.logger).With(
		zap.String("job_id", job.JobID),
		zap.Int64("milestone_id", job.MilestoneID),
	)

	var res Result
	stamped, err := r.withRetry(ctx, func(ctx context.Context) (int64, error) {
		return r.store.StampMilestoneClosed(ctx, job.MilestoneID, job.ClosedAt)
	})
	if err != nil {
		return res, fmt.Errorf("cascade %s: %w", job.JobID, err)
	}
	res.Stamped = stamped

	if _, err := r.withRetry(ctx, func(ctx context.Context) (int64, error) {
		return r.store.BumpProgressVersion(ctx, job.MilestoneID)
	}); err != nil {
		return res, fmt.Errorf("cascade %s: refresh progress: %w", job.JobID, err)
	}
	r.evicter.Evict(ctx, job.MilestoneID)

	res.Notified = r.notifyOnce(ctx, log, job)

	log.Info("Cascade applied",
		zap.Int64("stamped", res.Stamped),
		zap.Bool("notified", res.Notified),
	)
	return res, nil
}

// notifyOnce sends milestone.closed at most once per job. A failed send
// releases the dedup key so the next run can retry it; it never fails the
// cascade.
func (r *Runner) notifyOnce(ctx context.Context, log *zap.Logger, job model.CascadeJob) bool {
	if !r.deduper.AcquireOnce(ctx, dedupHandler, job.JobID) {
		return false
	}
	if err := r.notifier.Notify(ctx, EventMilestoneClosed, job); err != nil {
		r.deduper.Release(ctx, dedupHandler, job.JobID)
		log.Warn("Milestone closed notification failed", zap.Error(err))
		return false
	}
	return true
}

// withRetry keeps the last underlying error so callers can still classify it.
func (r *Runner) withRetry(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	var lastErr error
	n, err := retry.New[int64](r.retryConfig).Do(ctx, func(ctx context.Context) (int64, error) {
		n, err := fn(ctx)
		if err != nil {
			lastErr = err
		}
		return n, err
	})
	if err != nil {
		if lastErr != nil {
			return 0, lastErr
		}
		return 0, err
	}
	return n, nil
}
