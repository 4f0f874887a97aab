package outbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrAlreadySent 已发送的事件不允许再次重放
	ErrAlreadySent = errors.New("outbox event already sent")
	ErrNoPublisher = errors.New("replay requires a publisher")
)

// ReplayReport 批量重放结果
type ReplayReport struct {
	Replayed int     `json:"replayed"`
	Failed   []int64 `json:"failed,omitempty"`
}

// ReplayService 供运维手动重放 Outbox 事件（admin API 与 milestonectl 共用）
type ReplayService struct {
	repo      Store
	publisher Publisher
	logger    *zap.Logger
}

// NewReplayService publisher 可以为 nil，此时只能 RequeueEvent
func NewReplayService(repo Store, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ReplayEvent 立即发布一个 pending 或 failed 状态的事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	if s.publisher == nil {
		return ErrNoPublisher
	}
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == StatusSent {
		return fmt.Errorf("replay event %d: %w", eventID, ErrAlreadySent)
	}

	if err := publishEvent(ctx, s.publisher, event); err != nil {
		// 手动重放失败直接标记为 failed，不再交给 dispatcher 自动重试
		if markErr := s.repo.MarkAsFailed(ctx, eventID, event.RetryCount+1); markErr != nil {
			return fmt.Errorf("publish event %d: %w (mark failed: %v)", eventID, err, markErr)
		}
		return fmt.Errorf("publish event %d: %w", eventID, err)
	}

	if err := s.repo.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("mark event %d as sent: %w", eventID, err)
	}
	s.logger.Info("Outbox event replayed",
		zap.Int64("event_id", eventID),
		zap.String("aggregate_type", event.AggregateType),
		zap.Int64p("aggregate_id", event.AggregateID),
		zap.String("routing_key", event.RoutingKey),
	)
	return nil
}

// RequeueEvent 将事件重置为 pending，交给 dispatcher 处理
func (s *ReplayService) RequeueEvent(ctx context.Context, eventID int64) error {
	return s.repo.ReplayEvent(ctx, eventID)
}

// ReplayFailedEvents 重放最多 limit 个失败事件，单个失败记录在报告中而不返回错误
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list failed events: %w", err)
	}

	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed", zap.Int64("event_id", event.ID), zap.Error(err))
			report.Failed = append(report.Failed, event.ID)
			continue
		}
		report.Replayed++
	}
	return report, nil
}
