package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewWithoutEndpointIsNoop(t *testing.T) {
	inst, err := New(Config{ServiceName: "restitch-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := inst.(noopInstrumenter); !ok {
		t.Fatalf("expected noop instrumenter, got %T", inst)
	}

	ctx, span := inst.StartRun(context.Background(), RunStart{Root: "/tmp/project"})
	if ctx == nil || span == nil {
		t.Fatalf("noop must still hand back usable values")
	}
	span.Phase("extracting")
	span.End(RunResult{})
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestInstrumenterRecordsImportRun(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(
		Config{ServiceName: "restitch-test", Version: "test"},
		WithSpanProcessor(recorder),
	)
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	_, span := inst.StartRun(context.Background(), RunStart{Root: "/tmp/project", FileCount: 3})
	span.Phase("extracting")
	span.File("auth.spec.js", 2, 1, 0)
	span.End(RunResult{Requests: 2, Groups: 1, Fidelity: 98.5, HasFidelity: true})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}

	ended := spans[0]
	if ended.Name() != "restitch.import" {
		t.Fatalf("unexpected span name %q", ended.Name())
	}
	if ended.Status().Code != codes.Ok {
		t.Fatalf("expected OK status, got %v", ended.Status())
	}

	attrs := map[string]interface{}{}
	for _, kv := range ended.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["restitch.import.requests"] != int64(2) {
		t.Fatalf("requests attribute missing: %+v", attrs)
	}
	if attrs["restitch.import.fidelity_pct"] != 98.5 {
		t.Fatalf("fidelity attribute missing: %+v", attrs)
	}

	if len(ended.Events()) != 2 {
		t.Fatalf("expected phase and file events, got %d", len(ended.Events()))
	}
}

func TestInstrumenterMarksFailedRuns(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{ServiceName: "restitch-test"}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	_, span := inst.StartRun(context.Background(), RunStart{})
	span.End(RunResult{Err: errors.New("scan failed")})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
}
