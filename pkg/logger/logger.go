package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"milestone-service/pkg/trace"
)

// NewLogger 创建 logger；env 为 local 时使用开发配置，其余环境输出 JSON。
// 每条日志都带上 service 字段，便于多个二进制共用一个日志索引。
func NewLogger(env, service string) *zap.Logger {
	var cfg zap.Config
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.InitialFields = map[string]interface{}{
		"service": service,
		"env":     env,
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}

// ForMilestone 返回带 trace_id 与 milestone_id 的 logger
func ForMilestone(ctx context.Context, logger *zap.Logger, milestoneID int64) *zap.Logger {
	return WithTrace(ctx, logger).With(zap.Int64("milestone_id", milestoneID))
}
