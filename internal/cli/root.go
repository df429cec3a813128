package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/happensbefore/internal/config"
	"github.com/roach88/happensbefore/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Schema     string // schema reference, see schema.Load
	Database   string // SQLite path; empty disables persistence
	Metrics    bool   // record OTel metrics and report them on stderr
	Tracing    bool   // record OTel spans and report them on stderr

	// Resolved from the config file; there is no flag for it.
	ExportFormat string

	telemetry *observability.Session
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hb",
		Short: "hb - happens-before graphs for SDN traces",
		Long: `Build happens-before graphs from recorded event traces.

A schema describes the event kinds of the traced system and how they
relate; hb replays a trace against it in a single pass and reports which
events must have happened before which.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Metrics || opts.Tracing {
				opts.telemetry = observability.NewSession(opts.Metrics, opts.Tracing)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.flushTelemetry(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to hb.yaml")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "schema file, directory or builtin:sts")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite run store")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "report analysis metrics on stderr")
	cmd.PersistentFlags().BoolVar(&opts.Tracing, "tracing", false, "report analysis spans on stderr")

	// Add subcommands
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve merges the config file and environment under any flag the user
// set explicitly.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("schema") {
		o.Schema = cfg.Schema
	}
	if !flags.Changed("db") {
		o.Database = cfg.Store.Path
	}
	if !flags.Changed("format") {
		o.Format = cfg.Output.Format
	}
	if !flags.Changed("verbose") {
		o.Verbose = cfg.Output.Verbose
	}
	if !flags.Changed("metrics") {
		o.Metrics = cfg.Telemetry.Metrics
	}
	if !flags.Changed("tracing") {
		o.Tracing = cfg.Telemetry.Tracing
	}
	o.ExportFormat = cfg.Output.Export
	return nil
}

// flushTelemetry reports what the session recorded and releases it.
func (o *RootOptions) flushTelemetry(cmd *cobra.Command) error {
	if o.telemetry == nil {
		return nil
	}
	ctx := context.Background()
	err := o.telemetry.Report(ctx, cmd.ErrOrStderr())
	err = errors.Join(err, o.telemetry.Shutdown(ctx))
	o.telemetry = nil
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to report telemetry", err)
	}
	return nil
}

// logger returns the diagnostic logger for cmd. Logs go to stderr so they
// never mix with JSON output.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return observability.NewLogger(cmd.ErrOrStderr(), o.Verbose)
}

// formatter returns an OutputFormatter bound to cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
