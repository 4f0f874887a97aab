package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// HeaderName 是承载 trace ID 的 HTTP 头
const HeaderName = "X-Trace-ID"

// maxIDLen 限制外部传入的 trace ID 长度
const maxIDLen = 64

// GenerateTraceID 生成 32 位十六进制 trace ID
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sanitize 接受调用方提供的 trace ID；空值、过长或含非法字符时返回空串
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIDLen {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return ""
		}
	}
	return id
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure 确保 context 中带有 trace ID，没有则生成
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateTraceID()
	return WithContext(ctx, id), id
}
