package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/schema"
	"github.com/roach88/happensbefore/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Run string // run id or "latest"
}

// ReplayReport holds the outcome of re-analyzing a stored run.
type ReplayReport struct {
	RunID         string    `json:"run_id"`
	SchemaMatch   bool      `json:"schema_match"`
	StoredDigest  string    `json:"stored_digest"`
	ReplayDigest  string    `json:"replay_digest"`
	Deterministic bool      `json:"deterministic"`
	Missing       []ir.Edge `json:"missing,omitempty"`
	Extra         []ir.Edge `json:"extra,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-analyze a stored run and verify determinism",
		Long: `Re-read the events of a stored run, analyze them again and compare
the resulting graph with the stored one.

The schema is taken from --schema (or config); a schema whose digest
differs from the one recorded with the run is reported.

Exit codes:
  0 - The replay reproduced the stored graph
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  hb replay --db runs.db
  hb replay --db runs.db --run 0190c3...
  hb replay --db runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "latest", "run id or latest")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "no run store: pass --db or set store.path")
	}

	ctx := cmd.Context()
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.ResolveRun(ctx, opts.Run)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %q not found", opts.Run), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	s, err := schema.Load(opts.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSchema, err.Error(), schemaErrorDetails(err))
	}

	report, err := replayRun(ctx, opts.RootOptions, st, run, s, cmd)
	if err != nil {
		return err
	}

	if formatter.Format == "json" {
		if !report.Deterministic {
			_ = formatter.encode(CLIResponse{
				Status: "error",
				Data:   report,
				Error:  &CLIError{Code: ErrCodeReplay, Message: "replay did not reproduce the stored graph"},
			})
			return NewExitError(ExitFailure, "replay did not reproduce the stored graph")
		}
		return formatter.Success(report)
	}

	return outputReplayText(cmd, report)
}

// replayRun analyzes the stored trace of run with s and diffs the result.
func replayRun(ctx context.Context, opts *RootOptions, st *store.Store, run store.Run, s *ir.Schema, cmd *cobra.Command) (ReplayReport, error) {
	formatter := opts.formatter(cmd)

	hash, err := s.Digest()
	if err != nil {
		return ReplayReport{}, WrapExitError(ExitCommandError, "failed to digest schema", err)
	}
	if hash != run.SchemaHash {
		formatter.VerboseLog("Schema %s differs from the one stored with run %s", s.Name, run.ID)
	}

	events, err := st.ReadTrace(ctx, run.ID)
	if err != nil {
		return ReplayReport{}, WrapExitError(ExitCommandError, "failed to read stored trace", err)
	}
	formatter.VerboseLog("Replaying %d events of run %s", len(events), run.ID)

	g, err := newAnalyzer(opts, s, cmd).Run(ctx, events)
	if err != nil {
		var engErr *engine.Error
		if errors.As(err, &engErr) {
			return ReplayReport{}, formatter.Fail(ExitFailure, string(engErr.Code), engErr.Message, engineErrorDetails(engErr))
		}
		return ReplayReport{}, WrapExitError(ExitFailure, "replay analysis failed", err)
	}

	digest, err := g.Digest()
	if err != nil {
		return ReplayReport{}, WrapExitError(ExitCommandError, "failed to digest graph", err)
	}
	cmp, err := st.CompareReplay(ctx, run.ID, digest, g.Edges())
	if err != nil {
		return ReplayReport{}, WrapExitError(ExitCommandError, "failed to compare replay", err)
	}

	return ReplayReport{
		RunID:         run.ID,
		SchemaMatch:   hash == run.SchemaHash,
		StoredDigest:  run.GraphDigest,
		ReplayDigest:  cmp.ReplayDigest,
		Deterministic: cmp.Match(),
		Missing:       cmp.Missing,
		Extra:         cmp.Extra,
	}, nil
}

func outputReplayText(cmd *cobra.Command, r ReplayReport) error {
	w := cmd.OutOrStdout()

	if r.Deterministic {
		printOK(w, fmt.Sprintf("Run %s reproduced", r.RunID))
	} else {
		printFail(w, fmt.Sprintf("Run %s not reproduced", r.RunID))
	}
	printKV(w, "Stored", r.StoredDigest)
	printKV(w, "Replay", r.ReplayDigest)
	if !r.SchemaMatch {
		printKV(w, "Schema", "differs from the stored run")
	}
	for _, e := range r.Missing {
		fmt.Fprintf(w, "  - %d -> %d  %s\n", e.From, e.To, e.Rule)
	}
	for _, e := range r.Extra {
		fmt.Fprintf(w, "  + %d -> %d  %s\n", e.From, e.To, e.Rule)
	}

	if !r.Deterministic {
		return NewExitError(ExitFailure, "replay did not reproduce the stored graph")
	}
	return nil
}
