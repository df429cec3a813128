package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/store"
)

// QueryOptions holds flags shared by the query subcommands.
type QueryOptions struct {
	*RootOptions
	Run  string // run id or "latest"
	Kind string // events: filter by kind
}

// RunView is the JSON shape of a stored run.
type RunView struct {
	ID              string `json:"id"`
	Seq             int64  `json:"seq"`
	Schema          string `json:"schema"`
	SchemaHash      string `json:"schema_hash"`
	Trace           string `json:"trace,omitempty"`
	GraphDigest     string `json:"graph_digest"`
	AnalyzerVersion string `json:"analyzer_version"`
	Events          int    `json:"events"`
	Edges           int    `json:"edges"`
}

// EventView is the JSON shape of a stored event.
type EventView struct {
	ID        ir.EventID `json:"id"`
	Kind      string     `json:"type"`
	Node      bool       `json:"node"`
	Tag       int64      `json:"tag,omitempty"`
	Candidate bool       `json:"candidate,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Inspect runs stored with analyze --db",
		Long: `Inspect stored runs.

Every subcommand reads the store given by --db and, unless --run names
another run, the most recent one.

Examples:
  hb query runs --db runs.db
  hb query edges --db runs.db
  hb query preds 15 --db runs.db --run 0190c3...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Run, "run", "latest", "run id or latest")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return queryRuns(ctx, opts, st, cmd)
			})
		},
	}

	edges := &cobra.Command{
		Use:   "edges",
		Short: "List the edges of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return queryEdges(ctx, opts, st, cmd, "", 0)
			})
		},
	}

	events := &cobra.Command{
		Use:   "events",
		Short: "List the events of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return queryEvents(ctx, opts, st, cmd)
			})
		},
	}
	events.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind")

	neighbours := func(use, short, dir string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <event-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid event id %q", args[0]))
				}
				return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
					return queryEdges(ctx, opts, st, cmd, dir, ir.EventID(id))
				})
			},
		}
	}

	cmd.AddCommand(runs, edges, events,
		neighbours("preds", "List the direct predecessors of an event", "preds"),
		neighbours("succs", "List the direct successors of an event", "succs"),
	)
	return cmd
}

// withStore opens the store for the duration of fn.
func withStore(opts *QueryOptions, cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "no run store: pass --db or set store.path")
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	return fn(cmd.Context(), st)
}

// resolveRun maps --run to a stored run and reports a missing run.
func resolveRun(ctx context.Context, opts *QueryOptions, st *store.Store, cmd *cobra.Command) (store.Run, error) {
	run, err := st.ResolveRun(ctx, opts.Run)
	if errors.Is(err, store.ErrRunNotFound) {
		return store.Run{}, opts.formatter(cmd).Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %q not found", opts.Run), nil)
	}
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return run, nil
}

func queryRuns(ctx context.Context, opts *QueryOptions, st *store.Store, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	views := make([]RunView, len(runs))
	for i, r := range runs {
		views[i] = viewRun(r)
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.Success(views)
	}
	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(w, "%4d  %s  %s  %s\n", v.Seq, titleStyle.Render(v.ID), v.Schema,
			mutedStyle.Render(fmt.Sprintf("%d events, %d edges", v.Events, v.Edges)))
	}
	return nil
}

// queryEdges lists all edges of the run, or only those into (preds) or
// out of (succs) event id.
func queryEdges(ctx context.Context, opts *QueryOptions, st *store.Store, cmd *cobra.Command, dir string, id ir.EventID) error {
	run, err := resolveRun(ctx, opts, st, cmd)
	if err != nil {
		return err
	}

	var edges []ir.Edge
	switch dir {
	case "preds":
		edges, err = st.Predecessors(ctx, run.ID, id)
	case "succs":
		edges, err = st.Successors(ctx, run.ID, id)
	default:
		edges, err = st.ReadEdges(ctx, run.ID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read edges", err)
	}
	if edges == nil {
		edges = []ir.Edge{}
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.Success(edges)
	}
	writeEdges(cmd.OutOrStdout(), edges)
	return nil
}

func queryEvents(ctx context.Context, opts *QueryOptions, st *store.Store, cmd *cobra.Command) error {
	run, err := resolveRun(ctx, opts, st, cmd)
	if err != nil {
		return err
	}

	var stored []store.StoredEvent
	if opts.Kind != "" {
		stored, err = st.ReadEventsOfKind(ctx, run.ID, opts.Kind)
	} else {
		stored, err = st.ReadEvents(ctx, run.ID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	views := make([]EventView, len(stored))
	for i, ev := range stored {
		views[i] = EventView{ID: ev.ID, Kind: ev.Kind, Node: ev.Node, Tag: ev.Tag, Candidate: ev.Candidate}
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.Success(views)
	}
	w := cmd.OutOrStdout()
	for _, v := range views {
		var notes string
		if !v.Node {
			notes = " bookkeeping"
		}
		if v.Candidate {
			notes += " candidate"
		}
		fmt.Fprintf(w, "%4d  %s%s\n", v.ID, v.Kind, mutedStyle.Render(notes))
	}
	return nil
}

func writeEdges(w io.Writer, edges []ir.Edge) {
	for _, e := range edges {
		fmt.Fprintf(w, "%d -> %d  %s\n", e.From, e.To, mutedStyle.Render(string(e.Rule)))
	}
}

func viewRun(r store.Run) RunView {
	return RunView{
		ID:              r.ID,
		Seq:             r.Seq,
		Schema:          r.SchemaName,
		SchemaHash:      r.SchemaHash,
		Trace:           r.TracePath,
		GraphDigest:     r.GraphDigest,
		AnalyzerVersion: r.AnalyzerVersion,
		Events:          r.EventCount,
		Edges:           r.EdgeCount,
	}
}
