package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/sanduku/internal/fileops"
	"github.com/jkaninda/sanduku/internal/pathguard"
	"github.com/jkaninda/sanduku/internal/runner"
)

// --- InstrumentedExecutor ---

// TestRunner is the surface instrumented around runner.Executor.
type TestRunner interface {
	Run(ctx context.Context, testPaths []string) runner.Result
}

// InstrumentedExecutor wraps a TestRunner with metrics and tracing.
type InstrumentedExecutor struct {
	inner   TestRunner
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedExecutor wraps a test runner with observability.
func NewInstrumentedExecutor(inner TestRunner, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedExecutor {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedExecutor{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (e *InstrumentedExecutor) Run(ctx context.Context, testPaths []string) runner.Result {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "runner.run",
			trace.WithAttributes(
				attribute.Int("runner.test_paths", len(testPaths)),
			))
		defer span.End()
	}

	start := time.Now()
	result := e.inner.Run(ctx, testPaths)
	duration := time.Since(start).Seconds()

	status := string(result.Status)

	if e.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("runner.status", status),
			attribute.Int("runner.passed", result.Passed),
			attribute.Int("runner.failed", result.Failed),
			attribute.Int("runner.errors", result.Errors),
		)
	}

	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(status).Inc()
		e.metrics.RunDuration.WithLabelValues(status).Observe(duration)
	}

	return result
}

// --- InstrumentedFiles ---

// FileService is the surface instrumented around fileops.Service.
type FileService interface {
	Read(path string) (string, error)
	Write(path, content string, overwrite bool) fileops.WriteResult
	List(path string, recursive bool) ([]string, error)
}

// InstrumentedFiles wraps a FileService with metrics.
// File operations are too cheap to be worth a span each.
type InstrumentedFiles struct {
	inner   FileService
	metrics *MetricsCollector
}

// NewInstrumentedFiles wraps a file service with observability.
func NewInstrumentedFiles(inner FileService, metrics *MetricsCollector) *InstrumentedFiles {
	return &InstrumentedFiles{inner: inner, metrics: metrics}
}

func (f *InstrumentedFiles) Read(path string) (string, error) {
	content, err := f.inner.Read(path)
	f.record("read", err)
	return content, err
}

func (f *InstrumentedFiles) Write(path, content string, overwrite bool) fileops.WriteResult {
	result := f.inner.Write(path, content, overwrite)
	if f.metrics != nil {
		f.metrics.FileOpsTotal.WithLabelValues("write", string(result.Status)).Inc()
	}
	return result
}

func (f *InstrumentedFiles) List(path string, recursive bool) ([]string, error) {
	entries, err := f.inner.List(path, recursive)
	f.record("list", err)
	return entries, err
}

func (f *InstrumentedFiles) record(op string, err error) {
	if f.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
		if errors.Is(err, pathguard.ErrUnsafePath) {
			f.metrics.PathRejectionsTotal.WithLabelValues(op).Inc()
		}
	}
	f.metrics.FileOpsTotal.WithLabelValues(op, status).Inc()
}

// --- InstrumentedEngine ---

// InstrumentedEngine wraps a runner.ContainerEngine with metrics.
type InstrumentedEngine struct {
	inner   runner.ContainerEngine
	metrics *MetricsCollector
}

// NewInstrumentedEngine wraps a container engine with observability.
func NewInstrumentedEngine(inner runner.ContainerEngine, metrics *MetricsCollector) *InstrumentedEngine {
	return &InstrumentedEngine{inner: inner, metrics: metrics}
}

func (e *InstrumentedEngine) EnsureImage(ctx context.Context, image string) error {
	err := e.inner.EnsureImage(ctx, image)
	if e.metrics != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		e.metrics.ImagePullsTotal.WithLabelValues(result).Inc()
	}
	return err
}

func (e *InstrumentedEngine) RunOnce(ctx context.Context, spec runner.RunSpec) (*runner.RunOutput, error) {
	return e.inner.RunOnce(ctx, spec)
}

// --- Compile-time interface checks ---

var (
	_ TestRunner             = (*InstrumentedExecutor)(nil)
	_ FileService            = (*InstrumentedFiles)(nil)
	_ runner.ContainerEngine = (*InstrumentedEngine)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
