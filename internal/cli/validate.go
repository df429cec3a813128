package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/happensbefore/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Schema   string                   `json:"schema,omitempty"`
	Kinds    int                      `json:"kinds,omitempty"`
	Errors   []schema.ValidationError `json:"errors,omitempty"`
	Findings []schema.Finding         `json:"findings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema]",
		Short: "Validate a schema without analyzing a trace",
		Long: `Compile and validate a schema, then report advisory findings.

The schema is a .cue file, a directory holding one CUE package, or
builtin:sts. Without an argument the --schema flag (or config) is used.

Validation errors make the schema unusable. Findings (compatibility
loops, kinds no rule can ever select) are advisory only.

Exit codes:
  0 - Schema valid
  1 - Schema invalid
  2 - Command error (schema not found)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := rootOpts.Schema
			if len(args) == 1 {
				ref = args[0]
			}
			return runValidate(rootOpts, ref, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, ref string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := schema.Load(ref)
	if err != nil {
		var verrs schema.ValidationErrors
		var cerr *schema.CompileError
		switch {
		case errors.As(err, &verrs):
			return outputValidationErrors(formatter, verrs)
		case errors.As(err, &cerr):
			return formatter.Fail(ExitFailure, ErrCodeSchema, cerr.Error(), nil)
		case errors.Is(err, schema.ErrNotFound):
			return formatter.Fail(ExitCommandError, ErrCodeSchema, err.Error(), nil)
		default:
			return formatter.Fail(ExitFailure, ErrCodeSchema, err.Error(), nil)
		}
	}

	formatter.VerboseLog("Compiled schema %s with %d kind(s)", s.Name, len(s.Kinds))

	result := ValidationResult{
		Valid:    true,
		Schema:   s.Name,
		Kinds:    len(s.Kinds),
		Findings: schema.Analyze(s),
	}
	return outputValidateSuccess(formatter, result)
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	printOK(w, fmt.Sprintf("Schema %s valid (%d kinds)", result.Schema, result.Kinds))
	for _, f := range result.Findings {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(f.Level+":"), f.Message)
	}
	return nil
}

// outputValidationErrors outputs validation errors in the configured format.
func outputValidationErrors(formatter *OutputFormatter, errs schema.ValidationErrors) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    ErrCodeSchema,
				Message: fmt.Sprintf("validation failed with %d error(s)", len(errs)),
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	printFail(formatter.Writer, "Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
