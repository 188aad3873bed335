package telemetry

import (
	"context"
	"testing"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if IsEnabled() {
		t.Fatal("expected IsEnabled() false after a disabled Init")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestStartSpan_WithoutInitUsesNoop(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()
	if TraceID(ctx) != "" {
		t.Fatal("expected empty trace id from the no-op tracer")
	}
}

func TestRecordError_NilIsNoop(t *testing.T) {
	ctx := context.Background()
	RecordError(ctx, nil) // must not panic
}

func TestInitProfiling_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitProfiling: %v", err)
	}
	if IsProfilingEnabled() {
		t.Fatal("expected IsProfilingEnabled() false after a disabled InitProfiling")
	}
	if err := shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
