package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/trace"
	"milestone-service/pkg/util"
)

type Invalidator interface {
	Invalidate(ctx context.Context, milestoneID int64) error
}

// InputsChangedHandler bumps a milestone's progress version whenever an
// issue or merge request attached to it changes elsewhere.
type InputsChangedHandler struct {
	progress Invalidator
	logger   *zap.Logger
}

func NewInputsChangedHandler(progress Invalidator, logger *zap.Logger) *InputsChangedHandler {
	return &InputsChangedHandler{progress: progress, logger: logger}
}

func (h *InputsChangedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.InputsChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.MilestoneID <= 0 {
		h.logger.Warn("Dropping invalid inputs_changed payload", zap.String("raw", string(raw)), zap.Error(err))
		return nil
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	err := h.progress.Invalidate(ctx, p.MilestoneID)
	if err == nil {
		return nil
	}
	log := logger.ForMilestone(ctx, h.logger, p.MilestoneID)
	if model.Kind(err) == model.KindNotFound {
		log.Info("inputs_changed for unknown milestone, ignoring")
		return nil
	}
	if retryable, errType := util.IsRetryableError(err); retryable {
		log.Warn("Invalidate failed, requeueing", zap.String("error_type", errType), zap.Error(err))
		return fmt.Errorf("invalidate milestone %d: %w", p.MilestoneID, err)
	}
	log.Error("Invalidate failed", zap.Error(err))
	return nil
}
