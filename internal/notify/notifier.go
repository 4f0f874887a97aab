// Package notify publishes milestone lifecycle notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/circuitbreaker"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/trace"
)

type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

const defaultPublishTimeout = 5 * time.Second

// MQNotifier publishes to the events exchange behind a circuit breaker so a
// broken broker fails fast instead of stalling closures. Each publish is
// bounded by publishTimeout.
type MQNotifier struct {
	publisher      Publisher
	cb             *circuitbreaker.CircuitBreaker
	publishTimeout time.Duration
	logger         *zap.Logger
}

func NewMQNotifier(publisher Publisher, logger *zap.Logger) *MQNotifier {
	cbConfig := circuitbreaker.DefaultConfig()
	cbConfig.FailureThreshold = 3
	cbConfig.HalfOpenMaxRequests = 1
	return &MQNotifier{
		publisher:      publisher,
		cb:             circuitbreaker.NewCircuitBreaker(cbConfig),
		publishTimeout: defaultPublishTimeout,
		logger:         logger,
	}
}

func (n *MQNotifier) WithPublishTimeout(d time.Duration) *MQNotifier {
	if d > 0 {
		n.publishTimeout = d
	}
	return n
}

// WithBreaker replaces the circuit breaker.
func (n *MQNotifier) WithBreaker(cb *circuitbreaker.CircuitBreaker) *MQNotifier {
	n.cb = cb
	return n
}

func (n *MQNotifier) Notify(ctx context.Context, event string, job model.CascadeJob) error {
	payload := mqcontracts.MilestoneClosedNotification{
		Event:       event,
		MilestoneID: job.MilestoneID,
		JobID:       job.JobID,
		ClosedAt:    job.ClosedAt,
		TraceID:     trace.FromContext(ctx),
	}
	t := timeout.New[struct{}](timeout.Config{DefaultTimeout: n.publishTimeout})
	err := n.cb.Execute(func() error {
		_, err := t.Execute(ctx, n.publishTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, n.publisher.PublishWithContext(ctx, event, payload)
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("notify %s for milestone %d: %w", event, job.MilestoneID, err)
	}
	logger.WithTrace(ctx, n.logger).Debug("Notification published",
		zap.String("event", event),
		zap.Int64("milestone_id", job.MilestoneID),
	)
	return nil
}

// LogNotifier only logs; used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event string, job model.CascadeJob) error {
	logger.WithTrace(ctx, n.logger).Info("Notification",
		zap.String("event", event),
		zap.Int64("milestone_id", job.MilestoneID),
		zap.String("job_id", job.JobID),
	)
	return nil
}
