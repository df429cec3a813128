package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/schema"
	"github.com/roach88/happensbefore/internal/trace"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes analyzer logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) { c.logger = logger }
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Load and validate the scenario's schema
// 2. Build the trace from inline events or the trace file
// 3. Analyze the trace
// 4. Evaluate assertions against the graph or the failure
//
// An analysis failure is a test result, not an error: it either satisfies
// an error assertion or fails the scenario. Run only returns an error when
// the scenario itself cannot be executed.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	sch, err := schema.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	events, err := scenarioEvents(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace: %w", err)
	}

	result := NewResult()
	result.Schema = sch
	g, runErr := engine.New(sch, engine.WithLogger(cfg.logger)).Run(context.Background(), events)
	if runErr != nil {
		var engErr *engine.Error
		if !errors.As(runErr, &engErr) {
			return nil, fmt.Errorf("analysis failed: %w", runErr)
		}
		result.ErrorCode = string(engErr.Code)
		result.RunError = runErr.Error()
	} else {
		result.Graph = g
		result.Edges = g.Edges()
		result.Candidates = g.Candidates()
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func scenarioEvents(s *Scenario) ([]ir.Event, error) {
	if s.Trace != "" {
		return trace.ReadFile(s.Trace)
	}
	return s.BuildEvents()
}
