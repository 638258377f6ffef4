package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// Recorder keeps every ended span in memory. It does not touch the global
// providers, so tests using it can run in parallel.
type Recorder struct {
	spans *tracetest.SpanRecorder
	tp    *sdktrace.TracerProvider
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	spans := tracetest.NewSpanRecorder()
	return &Recorder{
		spans: spans,
		tp:    sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	}
}

// Tracer returns a tracer whose spans are recorded.
func (r *Recorder) Tracer(name string) trace.Tracer {
	return r.tp.Tracer(name)
}

// Span returns the last ended span called name, failing tb when there is none.
func (r *Recorder) Span(tb testing.TB, name string) sdktrace.ReadOnlySpan {
	tb.Helper()
	ended := r.spans.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	names := make([]string, len(ended))
	for i, s := range ended {
		names[i] = s.Name()
	}
	tb.Fatalf("span %q not recorded; have %v", name, names)
	return nil
}

// AssertAttr fails tb unless span name carries key with value want.
func (r *Recorder) AssertAttr(tb testing.TB, name, key string, want any) {
	tb.Helper()
	span := r.Span(tb, name)
	for _, kv := range span.Attributes() {
		if kv.Key != attribute.Key(key) {
			continue
		}
		if got := kv.Value.AsInterface(); got != want {
			tb.Errorf("span %q: %s = %v (%T), want %v (%T)", name, key, got, got, want, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %s", name, key)
}

// AssertStatus fails tb unless span name ended with code.
func (r *Recorder) AssertStatus(tb testing.TB, name string, code codes.Code) {
	tb.Helper()
	if got := r.Span(tb, name).Status().Code; got != code {
		tb.Errorf("span %q: status %s, want %s", name, got, code)
	}
}
