package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var tracerName = "github.com/unkn0wn-root/restitch/internal/telemetry"

// Instrumenter traces import runs. It is a no-op unless an endpoint (or an
// explicit exporter) is configured, so callers never branch on telemetry
// being enabled.
type Instrumenter interface {
	StartRun(ctx context.Context, info RunStart) (context.Context, RunSpan)
	Shutdown(ctx context.Context) error
}

type RunStart struct {
	Root      string
	FileCount int
}

type RunResult struct {
	Err         error
	Requests    int
	Groups      int
	Warnings    int
	Errors      int
	Fidelity    float64
	HasFidelity bool
}

type RunSpan interface {
	Phase(name string)
	File(path string, requests, groups, issues int)
	End(result RunResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts, sdktrace.WithResource(res))
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) StartRun(ctx context.Context, info RunStart) (context.Context, RunSpan) {
	attrs := []attribute.KeyValue{
		attribute.String("restitch.import.root", info.Root),
		attribute.Int("restitch.import.file_count", info.FileCount),
	}
	ctx, span := m.tracer.Start(
		ctx,
		"restitch.import",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &runSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type runSpan struct {
	span trace.Span
}

func (rs *runSpan) Phase(name string) {
	if rs == nil || rs.span == nil {
		return
	}
	rs.span.AddEvent(
		"restitch.import.phase",
		trace.WithAttributes(attribute.String("restitch.import.phase", name)),
		trace.WithTimestamp(time.Now()),
	)
}

func (rs *runSpan) File(path string, requests, groups, issues int) {
	if rs == nil || rs.span == nil {
		return
	}
	rs.span.AddEvent("restitch.import.file", trace.WithAttributes(
		attribute.String("restitch.import.file", path),
		attribute.Int("restitch.import.file_requests", requests),
		attribute.Int("restitch.import.file_groups", groups),
		attribute.Int("restitch.import.file_issues", issues),
	))
}

func (rs *runSpan) End(result RunResult) {
	if rs == nil || rs.span == nil {
		return
	}

	rs.span.SetAttributes(
		attribute.Int("restitch.import.requests", result.Requests),
		attribute.Int("restitch.import.groups", result.Groups),
		attribute.Int("restitch.import.warnings", result.Warnings),
		attribute.Int("restitch.import.errors", result.Errors),
	)
	if result.HasFidelity {
		rs.span.SetAttributes(attribute.Float64("restitch.import.fidelity_pct", result.Fidelity))
	}

	if result.Err != nil {
		rs.span.RecordError(result.Err)
		rs.span.SetStatus(codes.Error, result.Err.Error())
	} else if result.Errors > 0 {
		rs.span.SetStatus(codes.Error, fmt.Sprintf("%d recovered errors", result.Errors))
	} else {
		rs.span.SetStatus(codes.Ok, "OK")
	}
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) StartRun(ctx context.Context, _ RunStart) (context.Context, RunSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) Phase(string) {}

func (noopSpan) File(string, int, int, int) {}

func (noopSpan) End(RunResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}
