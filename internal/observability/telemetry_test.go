package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionReportsSpansAndMetrics(t *testing.T) {
	ctx := context.Background()
	s := NewSession(true, true)
	t.Cleanup(func() { _ = s.Shutdown(ctx) })

	spans := s.Spans()
	_, span := spans.StartRunSpan(ctx, "sts-openflow", 3)
	spans.EndSpanWithError(span, nil)

	m := s.Metrics()
	m.RecordEvent(ctx, "Send")
	m.RecordEvent(ctx, "Receive")
	m.RecordEdge(ctx, "transfer")
	m.RecordRun(ctx, true, time.Millisecond, 3)

	var out bytes.Buffer
	require.NoError(t, s.Report(ctx, &out))

	report := out.String()
	assert.Contains(t, report, "span hb.analyze")
	assert.Contains(t, report, "schema.name=sts-openflow")
	assert.Contains(t, report, "trace.events=3")
	assert.Contains(t, report, "metric hb.events 2\n")
	assert.Contains(t, report, "metric hb.edges 1\n")
	assert.Contains(t, report, "metric hb.runs 1\n")
	assert.Contains(t, report, "metric hb.run.events count=1 sum=3\n")
}

func TestSessionRecordsSpanErrors(t *testing.T) {
	ctx := context.Background()
	s := NewSession(false, true)
	t.Cleanup(func() { _ = s.Shutdown(ctx) })

	_, span := s.Spans().StartRunSpan(ctx, "test", 1)
	s.Spans().EndSpanWithError(span, errors.New("boom"))

	var out bytes.Buffer
	require.NoError(t, s.Report(ctx, &out))
	assert.Contains(t, out.String(), "Error")
	assert.NotContains(t, out.String(), "metric ")
}

func TestSessionDisabledSignals(t *testing.T) {
	s := NewSession(false, false)

	_, isNoop := s.Metrics().(NoopMetrics)
	assert.True(t, isNoop)
	_, isNoopSpans := s.Spans().(NoopSpanManager)
	assert.True(t, isNoopSpans)

	var out bytes.Buffer
	require.NoError(t, s.Report(context.Background(), &out))
	assert.Empty(t, out.String())
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestNilSession(t *testing.T) {
	var s *Session

	_, isNoop := s.Metrics().(NoopMetrics)
	assert.True(t, isNoop)
	assert.NoError(t, s.Report(context.Background(), &bytes.Buffer{}))
	assert.NoError(t, s.Shutdown(context.Background()))
}
