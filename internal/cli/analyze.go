package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/schema"
	"github.com/roach88/happensbefore/internal/store"
	"github.com/roach88/happensbefore/internal/trace"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	Progress  bool // show a progress bar while reading the trace
	ListEdges bool // print every edge in text output
}

// AnalyzeResult summarizes one analysis.
type AnalyzeResult struct {
	Schema     string         `json:"schema"`
	Events     int            `json:"events"`
	Nodes      int            `json:"nodes"`
	Edges      int            `json:"edges"`
	Rules      map[string]int `json:"rules"`
	Candidates []ir.EventID   `json:"candidates"`
	Digest     string         `json:"digest"`
	RunID      string         `json:"run_id,omitempty"`
	EdgeList   []ir.Edge      `json:"edge_list,omitempty"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze <trace.jsonl>",
		Short: "Build the happens-before graph of a trace",
		Long: `Build the happens-before graph of a trace and print a summary.

The trace is read as newline-delimited JSON and analyzed against the
schema given by --schema (default: the built-in STS OpenFlow schema).
With --db the run is stored for later query and replay.

Exit codes:
  0 - Graph built
  1 - The trace violates an analysis invariant
  2 - Command error (unreadable schema or trace, store failure)

Examples:
  hb analyze trace.jsonl
  hb analyze trace.jsonl --db runs.db
  hb analyze trace.jsonl --schema ./myschema.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Progress, "progress", false, "show a progress bar while reading the trace")
	cmd.Flags().BoolVar(&opts.ListEdges, "edges", false, "list every edge")

	return cmd
}

func runAnalyze(opts *AnalyzeOptions, tracePath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, g, err := buildGraph(opts.RootOptions, tracePath, opts.Progress, cmd)
	if err != nil {
		return err
	}

	result := AnalyzeResult{
		Schema:     g.SchemaName(),
		Events:     len(g.Events()),
		Nodes:      len(g.Nodes()),
		Edges:      g.EdgeCount(),
		Rules:      ruleCounts(g.Edges()),
		Candidates: g.Candidates(),
	}
	if result.Digest, err = g.Digest(); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest graph", err)
	}
	if opts.ListEdges {
		result.EdgeList = g.Edges()
	}

	if opts.Database != "" {
		run, err := saveRun(opts.RootOptions, s, g, tracePath, cmd)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		formatter.VerboseLog("Stored run %s (seq %d) in %s", run.ID, run.Seq, opts.Database)
		result.RunID = run.ID
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	outputAnalyzeText(cmd.OutOrStdout(), result)
	return nil
}

// buildGraph loads the schema and trace and runs the analyzer. Failures are
// already reported through the formatter; the returned error carries only
// the exit code.
func buildGraph(opts *RootOptions, tracePath string, progress bool, cmd *cobra.Command) (*ir.Schema, *engine.Graph, error) {
	formatter := opts.formatter(cmd)

	s, err := schema.Load(opts.Schema)
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeSchema, err.Error(), schemaErrorDetails(err))
	}
	formatter.VerboseLog("Loaded schema %s (%d kinds)", s.Name, len(s.Kinds))

	events, err := readTrace(tracePath, progress, cmd)
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeTrace, err.Error(), nil)
	}
	formatter.VerboseLog("Read %d events from %s", len(events), tracePath)

	g, err := newAnalyzer(opts, s, cmd).Run(cmd.Context(), events)
	if err != nil {
		var engErr *engine.Error
		if errors.As(err, &engErr) {
			return nil, nil, formatter.Fail(ExitFailure, string(engErr.Code), engErr.Message, engineErrorDetails(engErr))
		}
		return nil, nil, WrapExitError(ExitFailure, "analysis failed", err)
	}
	return s, g, nil
}

// newAnalyzer wires logging and the telemetry the config enabled.
func newAnalyzer(opts *RootOptions, s *ir.Schema, cmd *cobra.Command) *engine.Analyzer {
	analyzerOpts := []engine.AnalyzerOption{engine.WithLogger(opts.logger(cmd))}
	if opts.Metrics {
		analyzerOpts = append(analyzerOpts, engine.WithMetrics(opts.telemetry.Metrics()))
	}
	if opts.Tracing {
		analyzerOpts = append(analyzerOpts, engine.WithSpans(opts.telemetry.Spans()))
	}
	return engine.New(s, analyzerOpts...)
}

func readTrace(path string, progress bool, cmd *cobra.Command) ([]ir.Event, error) {
	if !progress {
		return trace.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat trace: %w", err)
	}

	bar := newProgressBar(cmd.ErrOrStderr(), info.Size(), "reading trace")
	events, err := trace.Decode(io.TeeReader(f, bar))
	_ = bar.Finish()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

func saveRun(opts *RootOptions, s *ir.Schema, g *engine.Graph, tracePath string, cmd *cobra.Command) (store.Run, error) {
	hash, err := s.Digest()
	if err != nil {
		return store.Run{}, err
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return store.Run{}, err
	}
	defer st.Close()
	return st.WriteRun(cmd.Context(), g, store.RunMeta{SchemaHash: hash, TracePath: tracePath})
}

func ruleCounts(edges []ir.Edge) map[string]int {
	counts := make(map[string]int)
	for _, e := range edges {
		counts[string(e.Rule)]++
	}
	return counts
}

func engineErrorDetails(e *engine.Error) map[string]any {
	details := map[string]any{
		"event": e.EventID,
		"kind":  e.Kind,
	}
	if e.Rule != "" {
		details["rule"] = e.Rule
	}
	if len(e.Candidates) > 0 {
		details["candidates"] = e.Candidates
	}
	return details
}

func schemaErrorDetails(err error) any {
	var verrs schema.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}

func outputAnalyzeText(w io.Writer, r AnalyzeResult) {
	printOK(w, "Graph built")
	printRule(w)
	printKV(w, "Schema", r.Schema)
	printKV(w, "Events", r.Events)
	printKV(w, "Nodes", r.Nodes)
	printKV(w, "Edges", r.Edges)
	for _, rule := range slices.Sorted(maps.Keys(r.Rules)) {
		printKV(w, "  "+rule, r.Rules[rule])
	}
	printKV(w, "Candidates", len(r.Candidates))
	printKV(w, "Digest", r.Digest)
	if r.RunID != "" {
		printKV(w, "Run", r.RunID)
	}
	printRule(w)
	for _, e := range r.EdgeList {
		fmt.Fprintf(w, "  %d -> %d  %s\n", e.From, e.To, mutedStyle.Render(string(e.Rule)))
	}
}
