// Package telemetry sets up OpenTelemetry tracing and metrics export for
// schemactx commands.
//
// Telemetry is off unless enabled in configuration. When an exporter cannot
// be created the command still runs: Start returns a Telemetry whose
// Degraded reason explains what is missing, and tracers fall back to the
// global no-op provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/schemactx/internal/config"
)

const (
	metricInterval  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Telemetry owns the tracer and meter providers of one process.
type Telemetry struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	degraded []string
}

// Option replaces an OTLP exporter, mainly for tests.
type Option func(*options)

type options struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Reader
}

// WithSpanExporter sends spans to exp instead of the OTLP endpoint.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spans = exp }
}

// WithMetricReader collects metrics with r instead of exporting them.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metrics = r }
}

// Start installs global tracer and meter providers exporting to the
// configured collector. Plain-text export is only allowed to loopback
// endpoints.
func Start(ctx context.Context, s config.TelemetryConfig, version string, opts ...Option) (*Telemetry, error) {
	t := &Telemetry{}
	if !s.Enabled {
		return t, nil
	}
	if s.Endpoint == "" {
		return nil, errors.New("telemetry endpoint is required")
	}
	if s.Insecure && !isLoopback(s.Endpoint) {
		return nil, fmt.Errorf("insecure telemetry export to %s is not allowed; use TLS or a loopback endpoint", s.Endpoint)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(s.ServiceName),
		semconv.ServiceVersion(version),
	)

	spans := o.spans
	if spans == nil {
		exp, err := spanExporter(ctx, s)
		if err != nil {
			t.degrade("traces: %v", err)
		} else {
			spans = exp
		}
	}
	if spans != nil {
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sampler(s.SampleRate))),
		)
		otel.SetTracerProvider(t.tp)
	}

	reader := o.metrics
	if reader == nil {
		exp, err := metricExporter(ctx, s)
		if err != nil {
			t.degrade("metrics: %v", err)
		} else {
			reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))
		}
	}
	if reader != nil {
		t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
		otel.SetMeterProvider(t.mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func (t *Telemetry) degrade(format string, args ...any) {
	t.degraded = append(t.degraded, fmt.Sprintf(format, args...))
}

// Degraded explains which exporters could not be created. It is empty when
// telemetry is disabled or fully running.
func (t *Telemetry) Degraded() string {
	if t == nil {
		return ""
	}
	return strings.Join(t.degraded, "; ")
}

// Tracer returns a tracer from the process provider, or the global one when
// tracing is off.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	if t == nil || t.tp == nil {
		return otel.Tracer(name)
	}
	return t.tp.Tracer(name)
}

// Shutdown flushes and stops both providers. Without a deadline on ctx it
// waits at most five seconds.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
