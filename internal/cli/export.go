package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/happensbefore/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	To     string // dot | json
	Output string // file path; empty writes to stdout
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <trace.jsonl>",
		Short: "Write the happens-before graph as DOT or JSON",
		Long: `Analyze a trace and write its happens-before graph.

DOT output renders with Graphviz (dot -Tsvg). JSON output is canonical:
the same trace and schema always produce the same bytes.

Examples:
  hb export trace.jsonl > graph.dot
  hb export trace.jsonl --to json -o graph.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("to") && opts.ExportFormat != "" {
				opts.To = opts.ExportFormat
			}
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", string(export.FormatDOT), "export format (dot|json)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, tracePath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	format := export.Format(opts.To)
	if format != export.FormatDOT && format != export.FormatJSON {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid export format %q: must be dot or json", opts.To))
	}

	s, g, err := buildGraph(opts.RootOptions, tracePath, false, cmd)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, g, format, export.OptionsFor(s)); err != nil {
		return WrapExitError(ExitCommandError, "failed to export graph", err)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	formatter.VerboseLog("Wrote %s graph to %s", format, opts.Output)
	return nil
}
