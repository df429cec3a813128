package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m := NoopMetrics{}
		m.RecordEvent(ctx, "k")
		m.RecordEdge(ctx, "r")
		m.RecordRun(ctx, false, time.Second, 3)

		s := NoopSpanManager{}
		ctx2, span := s.StartRunSpan(ctx, "s", 1)
		assert.Equal(t, ctx, ctx2)
		s.AddSpanEvent(ctx2, "x")
		s.EndSpanWithError(span, errors.New("boom"))
	})
}

func TestNewLoggerLevels(t *testing.T) {
	var quiet bytes.Buffer
	logger := NewLogger(&quiet, false)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, quiet.String(), "hidden")
	assert.Contains(t, quiet.String(), "shown")

	var loud bytes.Buffer
	NewLogger(&loud, true).Debug("details", "id", 3)
	assert.Contains(t, loud.String(), "details")
	assert.Contains(t, loud.String(), "id=3")
}

func TestRunLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := EnrichLogger(NewLogger(&buf, true), "sts", 10)
	LogRunStart(logger)
	LogRunComplete(logger, 1.5, 4)
	LogRunError(logger, errors.New("bad trace"), 2)

	out := buf.String()
	assert.Contains(t, out, "schema=sts")
	assert.Contains(t, out, "events=10")
	assert.Contains(t, out, "analysis completed")
	assert.Contains(t, out, "edges=4")
	assert.Contains(t, out, `error="bad trace"`)

	assert.Nil(t, EnrichLogger(nil, "s", 1))
	assert.NotPanics(t, func() {
		LogRunStart(nil)
		LogRunComplete(nil, 0, 0)
		LogRunError(nil, errors.New("x"), 0)
	})
}
