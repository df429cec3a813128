package harness

import (
	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Edges is the happens-before relation, nil when the analysis failed.
	Edges []ir.Edge `json:"edges"`

	// Candidates is the final candidate set, nil when the analysis failed.
	Candidates []ir.EventID `json:"candidates"`

	// ErrorCode is the code of the fatal analysis error, if any.
	ErrorCode string `json:"error_code,omitempty"`

	// RunError is the fatal analysis error message, if any.
	RunError string `json:"run_error,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Graph is the analyzed graph, nil when the analysis failed.
	Graph *engine.Graph `json:"-"`

	// Schema is the schema the scenario ran against.
	Schema *ir.Schema `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
