package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Analyzer builds happens-before graphs for traces of one schema.
//
// An Analyzer is immutable after construction and safe for concurrent use:
// each Run owns its registry, index and accumulator.
type Analyzer struct {
	schema  *ir.Schema
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the logger. Per-event detail is logged at Debug.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) AnalyzerOption {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) AnalyzerOption {
	return func(a *Analyzer) {
		a.spans = s
	}
}

// New creates an Analyzer for schema. Telemetry defaults to no-ops and
// logging to a discarding logger.
func New(schema *ir.Schema, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		schema:  schema,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Schema returns the analyzer's schema.
func (a *Analyzer) Schema() *ir.Schema { return a.schema }

// Run builds the graph for events in a single forward pass.
//
// Events are processed in ascending id order regardless of input order.
// The first violation aborts the run and no graph is returned. ctx carries
// telemetry only; a run is never interrupted part way.
func (a *Analyzer) Run(ctx context.Context, events []ir.Event) (*Graph, error) {
	start := time.Now()
	logger := observability.EnrichLogger(a.logger, a.schema.Name, len(events))
	ctx, span := a.spans.StartRunSpan(ctx, a.schema.Name, len(events))
	observability.LogRunStart(logger)

	var g *Graph
	r, err := a.execute(ctx, logger, events)
	if err == nil {
		g = r.finish()
	}

	elapsed := time.Since(start)
	ms := float64(elapsed.Microseconds()) / 1000
	a.metrics.RecordRun(ctx, err == nil, elapsed, len(events))
	a.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogRunError(logger, err, ms)
		return nil, err
	}
	a.spans.AddSpanEvent(ctx, "graph.complete", attribute.Int("graph.edges", g.EdgeCount()))
	observability.LogRunComplete(logger, ms, g.EdgeCount())
	return g, nil
}

// execute dispatches every event and returns the final run state.
func (a *Analyzer) execute(ctx context.Context, logger *slog.Logger, events []ir.Event) (*run, error) {
	ordered, byID, err := a.prepare(events)
	if err != nil {
		return nil, err
	}

	r := newRun(a.schema, logger, ordered, byID)
	r.onEdge = func(e ir.Edge) {
		a.metrics.RecordEdge(ctx, string(e.Rule))
	}
	for _, ev := range ordered {
		a.metrics.RecordEvent(ctx, ev.Kind)
		if err := r.dispatch(ev); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// prepare sorts the trace and rejects duplicate ids and unknown kinds
// before any event is dispatched.
func (a *Analyzer) prepare(events []ir.Event) ([]*ir.Event, map[ir.EventID]*ir.Event, error) {
	ordered := make([]*ir.Event, len(events))
	byID := make(map[ir.EventID]*ir.Event, len(events))
	for i := range events {
		ev := &events[i]
		if _, dup := byID[ev.ID]; dup {
			return nil, nil, newError(ErrCodeInvalidTrace, ev, "duplicate event id %d", ev.ID)
		}
		byID[ev.ID] = ev
		ordered[i] = ev
	}
	ir.SortEvents(ordered)

	for _, ev := range ordered {
		if _, ok := a.schema.Kind(ev.Kind); !ok {
			return nil, nil, newError(ErrCodeUnknownKind, ev, "kind %q is not in schema %q", ev.Kind, a.schema.Name)
		}
	}
	return ordered, byID, nil
}
