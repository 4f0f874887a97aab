package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"milestone-service/pkg/trace"
)

func TestWithTraceAddsField(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithTrace(context.Background(), base).Info("no trace")
	ForMilestone(trace.WithContext(context.Background(), "abc"), base, 42).Info("traced")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["trace_id"]; ok {
		t.Error("untraced context must not add trace_id")
	}
	fields := entries[1].ContextMap()
	if fields["trace_id"] != "abc" {
		t.Errorf("trace_id = %v", fields["trace_id"])
	}
	if fields["milestone_id"] != int64(42) {
		t.Errorf("milestone_id = %v", fields["milestone_id"])
	}
}

func TestNewLoggerEnvironments(t *testing.T) {
	for _, env := range []string{"local", "production"} {
		if l := NewLogger(env, "milestone-test"); l == nil {
			t.Fatalf("NewLogger(%q) returned nil", env)
		}
	}
}
