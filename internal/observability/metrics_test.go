package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestRecordEventsAndEdges(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics(otel.Meter("hb"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEvent(ctx, "Send")
	m.RecordEvent(ctx, "Send")
	m.RecordEvent(ctx, "Receive")
	m.RecordEdge(ctx, "transfer")

	rm := collectMetrics(t, reader)

	events := findMetric(rm, "hb.events")
	require.NotNil(t, events)
	sum, ok := events.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2, "one series per kind")

	edges := findMetric(rm, "hb.edges")
	require.NotNil(t, edges)
	edgeSum, ok := edges.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, edgeSum.DataPoints, 1)
	assert.Equal(t, int64(1), edgeSum.DataPoints[0].Value)
}

func TestRecordRun(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics(otel.Meter("hb"))
	require.NoError(t, err)

	m.RecordRun(context.Background(), true, 15*time.Millisecond, 42)

	rm := collectMetrics(t, reader)
	require.NotNil(t, findMetric(rm, "hb.runs"))
	require.NotNil(t, findMetric(rm, "hb.run.latency_ms"))

	sizes := findMetric(rm, "hb.run.events")
	require.NotNil(t, sizes)
	hist, ok := sizes.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, int64(42), hist.DataPoints[0].Sum)
}
