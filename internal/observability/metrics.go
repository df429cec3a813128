package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records analysis metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEvent records one dispatched event of kind.
	RecordEvent(ctx context.Context, kind string)

	// RecordEdge records one happens-before edge produced by rule.
	RecordEdge(ctx context.Context, rule string)

	// RecordRun records a run completion and the trace size.
	RecordRun(ctx context.Context, success bool, duration time.Duration, events int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	events     metric.Int64Counter
	edges      metric.Int64Counter
	runs       metric.Int64Counter
	runLatency metric.Float64Histogram
	runEvents  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("hb"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	events, err := meter.Int64Counter("hb.events",
		metric.WithDescription("Number of dispatched trace events"),
	)
	if err != nil {
		return nil, err
	}

	edges, err := meter.Int64Counter("hb.edges",
		metric.WithDescription("Number of happens-before edges"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("hb.runs",
		metric.WithDescription("Number of analysis runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("hb.run.latency_ms",
		metric.WithDescription("Analysis run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runEvents, err := meter.Int64Histogram("hb.run.events",
		metric.WithDescription("Trace size per analysis run"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		events:     events,
		edges:      edges,
		runs:       runs,
		runLatency: runLatency,
		runEvents:  runEvents,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFrom returns a MetricsRecorder whose instruments come
// from mp instead of the global provider.
func NewMetricsRecorderFrom(mp metric.MeterProvider) (MetricsRecorder, error) {
	return newOtelMetrics(mp.Meter("hb"))
}

// RecordEvent records a dispatched event.
func (m *otelMetrics) RecordEvent(ctx context.Context, kind string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordEdge records an edge.
func (m *otelMetrics) RecordEdge(ctx context.Context, rule string) {
	m.edges.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

// RecordRun records a run.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration, events int) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.runEvents.Record(ctx, int64(events), attrs)
}
