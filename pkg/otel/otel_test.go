package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := tp.Tracer("test")

	_, ok := tr.Start(context.Background(), "ok")
	RecordError(ok, nil)
	ok.End()

	_, failed := tr.Start(context.Background(), "failed")
	RecordError(failed, errors.New("stamp dependents: connection refused"))
	failed.End()

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	if spans[0].Status().Code != codes.Unset {
		t.Errorf("nil error changed status to %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error || len(spans[1].Events()) != 1 {
		t.Errorf("status = %v, events = %d", spans[1].Status().Code, len(spans[1].Events()))
	}
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(Config{ServiceName: "milestone-test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	shutdown()
	if _, span := StartSpan(context.Background(), "noop"); span.IsRecording() {
		t.Fatal("disabled tracing must hand out non-recording spans")
	}
}
