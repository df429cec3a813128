package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Session owns in-process SDK providers for one command invocation.
// Instruments record into memory; Report renders what was collected.
type Session struct {
	reader *sdkmetric.ManualReader
	meters *sdkmetric.MeterProvider
	spans  *tracetest.SpanRecorder
	tracer *sdktrace.TracerProvider
}

// NewSession creates a session. Disabled signals get no provider and
// their constructors return no-op implementations.
func NewSession(metrics, tracing bool) *Session {
	s := &Session{}
	if metrics {
		s.reader = sdkmetric.NewManualReader()
		s.meters = sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.reader))
	}
	if tracing {
		s.spans = tracetest.NewSpanRecorder()
		s.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))
	}
	return s
}

// Metrics returns a recorder bound to the session's meter provider.
func (s *Session) Metrics() MetricsRecorder {
	if s == nil || s.meters == nil {
		return NoopMetrics{}
	}
	m, err := NewMetricsRecorderFrom(s.meters)
	if err != nil {
		return NoopMetrics{}
	}
	return m
}

// Spans returns a span manager bound to the session's tracer provider.
func (s *Session) Spans() SpanManager {
	if s == nil || s.tracer == nil {
		return NoopSpanManager{}
	}
	return NewSpanManagerFrom(s.tracer)
}

// Report writes every ended span and every collected metric to w.
func (s *Session) Report(ctx context.Context, w io.Writer) error {
	if s == nil {
		return nil
	}
	if s.spans != nil {
		for _, span := range s.spans.Ended() {
			fmt.Fprintf(w, "span %s %s %s", span.Name(),
				span.EndTime().Sub(span.StartTime()).Round(time.Microsecond), span.Status().Code)
			for _, kv := range span.Attributes() {
				fmt.Fprintf(w, " %s=%s", kv.Key, kv.Value.Emit())
			}
			fmt.Fprintln(w)
		}
	}
	if s.reader != nil {
		var rm metricdata.ResourceMetrics
		if err := s.reader.Collect(ctx, &rm); err != nil {
			return fmt.Errorf("collect metrics: %w", err)
		}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				writeMetric(w, m)
			}
		}
	}
	return nil
}

func writeMetric(w io.Writer, m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		var total int64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
		fmt.Fprintf(w, "metric %s %d\n", m.Name, total)
	case metricdata.Histogram[int64]:
		var count uint64
		var sum int64
		for _, dp := range data.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}
		fmt.Fprintf(w, "metric %s count=%d sum=%d\n", m.Name, count, sum)
	case metricdata.Histogram[float64]:
		var count uint64
		var sum float64
		for _, dp := range data.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}
		fmt.Fprintf(w, "metric %s count=%d sum=%g\n", m.Name, count, sum)
	}
}

// Shutdown releases the session's providers.
func (s *Session) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.meters != nil {
		errs = append(errs, s.meters.Shutdown(ctx))
	}
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
