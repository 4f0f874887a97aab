package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/service/cascade"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/trace"
	"milestone-service/pkg/util"
)

const cascadeRetryHandler = "cascade"

type CascadeRunner interface {
	Run(ctx context.Context, job model.CascadeJob) (cascade.Result, error)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string, attempts int64) error
}

type FailureRecorder interface {
	RecordFailure(ctx context.Context, f *model.CascadeFailure) error
}

// CascadeHandler consumes milestone.cascade jobs. Retryable failures are
// requeued until maxAttempts; after that the job is dead-lettered and
// recorded for an operator.
type CascadeHandler struct {
	runner       CascadeRunner
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	failures     FailureRecorder
	maxAttempts  int64
	local        *localAttempts
	logger       *zap.Logger
}

// localAttempts counts deliveries per job in this process. It keeps the
// attempt bound while the shared counter is unreachable.
type localAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newLocalAttempts() *localAttempts {
	return &localAttempts{counts: make(map[string]int64)}
}

func (l *localAttempts) incr(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key]
}

func (l *localAttempts) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, key)
}

func NewCascadeHandler(
	runner CascadeRunner,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	failures FailureRecorder,
	maxAttempts int,
	logger *zap.Logger,
) *CascadeHandler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &CascadeHandler{
		runner:       runner,
		retryCounter: retryCounter,
		dlq:          dlq,
		failures:     failures,
		maxAttempts:  int64(maxAttempts),
		local:        newLocalAttempts(),
		logger:       logger,
	}
}

// Handle returns an error only when the message should be requeued.
func (h *CascadeHandler) Handle(ctx context.Context, raw json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in CascadeHandler", zap.Any("panic", r))
			err = fmt.Errorf("cascade handler panic: %v", r)
		}
	}()

	var p mqcontracts.CascadeRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.JobID == "" || p.MilestoneID <= 0 {
		if err == nil {
			err = fmt.Errorf("cascade payload missing job_id or milestone_id")
		}
		h.logger.Error("Invalid cascade payload, sending to DLQ",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		h.deadLetter(ctx, raw, err, 0)
		return nil
	}

	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("job_id", p.JobID),
		zap.Int64("milestone_id", p.MilestoneID),
	)

	job := model.CascadeJob{
		JobID:       p.JobID,
		MilestoneID: p.MilestoneID,
		ClosedAt:    p.ClosedAt,
		ActorID:     p.ActorID,
		TraceID:     p.TraceID,
	}

	retryKey := util.FormatRetryKey(cascadeRetryHandler, p.JobID)
	attempt, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		attempt = h.local.incr(retryKey)
		log.Warn("Retry counter unavailable, using process-local count",
			zap.Int64("attempt", attempt),
			zap.Error(cerr),
		)
	}

	start := time.Now()
	res, runErr := h.runner.Run(ctx, job)
	if runErr == nil {
		metrics.RecordCascade(string(model.CascadeDeferred), "ok", time.Since(start))
		h.resetAttempts(ctx, log, retryKey)
		log.Info("Cascade job completed",
			zap.Int64("attempt", attempt),
			zap.Int64("stamped", res.Stamped),
		)
		return nil
	}

	retryable, errType := util.IsRetryableError(runErr)
	if model.Kind(runErr) == model.KindNotFound {
		retryable, errType = false, "not_found"
	}
	log.Warn("Cascade job failed",
		zap.Int64("attempt", attempt),
		zap.Int64("max_attempts", h.maxAttempts),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(runErr),
	)

	if util.ShouldRetry(attempt, h.maxAttempts, retryable) {
		metrics.RecordCascade(string(model.CascadeDeferred), "retry", time.Since(start))
		return runErr
	}

	metrics.RecordCascade(string(model.CascadeDeferred), "failed", time.Since(start))
	h.giveUp(ctx, log, raw, job, attempt, runErr)
	h.resetAttempts(ctx, log, retryKey)
	return nil
}

func (h *CascadeHandler) resetAttempts(ctx context.Context, log *zap.Logger, key string) {
	h.local.reset(key)
	if err := h.retryCounter.Reset(ctx, key); err != nil {
		log.Debug("Failed to reset retry counter", zap.Error(err))
	}
}

func (h *CascadeHandler) giveUp(ctx context.Context, log *zap.Logger, raw []byte, job model.CascadeJob, attempts int64, cause error) {
	h.deadLetter(ctx, raw, cause, attempts)

	failure := &model.CascadeFailure{
		JobID:       job.JobID,
		MilestoneID: job.MilestoneID,
		Attempts:    int(attempts),
		LastError:   cause.Error(),
	}
	if err := h.failures.RecordFailure(ctx, failure); err != nil {
		log.Error("Failed to record cascade failure", zap.Error(err))
	}
	metrics.IncrementCascadeFailure()

	log.Error("Cascade needs attention",
		zap.Int64("attempts", attempts),
		zap.Error(fmt.Errorf("%w: %v", model.ErrAsyncCascadeFailed, cause)),
	)
}

func (h *CascadeHandler) deadLetter(ctx context.Context, raw []byte, cause error, attempts int64) {
	if err := h.dlq.PublishToDLQ(ctx, mqcontracts.RoutingKeyCascadeRequested, raw, cause.Error(), attempts); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
