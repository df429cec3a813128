package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string    // Assertion type for categorization
	Expected string    // Human-readable expected outcome
	Actual   string    // Human-readable actual outcome
	Edges    []ir.Edge // Full edge list for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Edges) > 0 {
		fmt.Fprintf(&buf, "\nGraph edges:\n")
		for _, edge := range e.Edges {
			fmt.Fprintf(&buf, "  %d -> %d (%s)\n", edge.From, edge.To, edge.Rule)
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	expectsError := false
	for _, a := range assertions {
		if a.Type == AssertError {
			expectsError = true
		}
	}
	if result.Graph == nil && !expectsError {
		return []string{fmt.Sprintf("analysis failed unexpectedly: %s", result.RunError)}
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEdge:
			err = assertEdge(result, assertion)
		case AssertNoEdge:
			err = assertNoEdge(result, assertion)
		case AssertEdgeCount:
			err = assertEdgeCount(result, assertion)
		case AssertPredecessors:
			err = assertPredecessors(result, assertion)
		case AssertCandidates:
			err = assertCandidates(result, assertion)
		case AssertRetired:
			err = assertRetired(result, assertion)
		case AssertSameTag:
			err = assertSameTag(result, assertion)
		case AssertError:
			err = assertError(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

func findEdge(edges []ir.Edge, from, to int64) (ir.Edge, bool) {
	for _, e := range edges {
		if int64(e.From) == from && int64(e.To) == to {
			return e, true
		}
	}
	return ir.Edge{}, false
}

func assertEdge(r *Result, a Assertion) error {
	e, ok := findEdge(r.Edges, a.From, a.To)
	if !ok {
		return &AssertionError{
			Type:     AssertEdge,
			Expected: fmt.Sprintf("edge %d -> %d", a.From, a.To),
			Actual:   "not found",
			Edges:    r.Edges,
		}
	}
	if a.Rule != "" && string(e.Rule) != a.Rule {
		return &AssertionError{
			Type:     AssertEdge,
			Expected: fmt.Sprintf("edge %d -> %d by %s", a.From, a.To, a.Rule),
			Actual:   fmt.Sprintf("produced by %s", e.Rule),
			Edges:    r.Edges,
		}
	}
	return nil
}

func assertNoEdge(r *Result, a Assertion) error {
	if e, ok := findEdge(r.Edges, a.From, a.To); ok {
		return &AssertionError{
			Type:     AssertNoEdge,
			Expected: fmt.Sprintf("no edge %d -> %d", a.From, a.To),
			Actual:   fmt.Sprintf("edge present (%s)", e.Rule),
			Edges:    r.Edges,
		}
	}
	return nil
}

func assertEdgeCount(r *Result, a Assertion) error {
	if len(r.Edges) != a.Count {
		return &AssertionError{
			Type:     AssertEdgeCount,
			Expected: fmt.Sprintf("%d edges", a.Count),
			Actual:   fmt.Sprintf("%d edges", len(r.Edges)),
			Edges:    r.Edges,
		}
	}
	return nil
}

func assertPredecessors(r *Result, a Assertion) error {
	got := toInts(r.Graph.Predecessors(ir.EventID(a.Event)))
	want := sortedCopy(a.Events)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertPredecessors,
			Expected: fmt.Sprintf("predecessors of %d = %v", a.Event, want),
			Actual:   fmt.Sprintf("%v", got),
			Edges:    r.Edges,
		}
	}
	return nil
}

func assertCandidates(r *Result, a Assertion) error {
	got := toInts(r.Candidates)
	want := sortedCopy(a.Events)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertCandidates,
			Expected: fmt.Sprintf("candidates %v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertRetired(r *Result, a Assertion) error {
	for _, id := range a.Events {
		if slices.Contains(r.Candidates, ir.EventID(id)) {
			return &AssertionError{
				Type:     AssertRetired,
				Expected: fmt.Sprintf("event %d consumed", id),
				Actual:   fmt.Sprintf("still a candidate (candidates %v)", toInts(r.Candidates)),
			}
		}
	}
	return nil
}

func assertSameTag(r *Result, a Assertion) error {
	first, ok := r.Graph.Tag(ir.EventID(a.Events[0]))
	if !ok {
		return &AssertionError{
			Type:     AssertSameTag,
			Expected: fmt.Sprintf("event %d tagged", a.Events[0]),
			Actual:   "no tag",
		}
	}
	for _, id := range a.Events[1:] {
		tag, ok := r.Graph.Tag(ir.EventID(id))
		if !ok || tag != first {
			actual := "no tag"
			if ok {
				actual = fmt.Sprintf("tag %d", tag)
			}
			return &AssertionError{
				Type:     AssertSameTag,
				Expected: fmt.Sprintf("event %d has tag %d like event %d", id, first, a.Events[0]),
				Actual:   actual,
			}
		}
	}
	return nil
}

func assertError(r *Result, a Assertion) error {
	if r.Graph != nil {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("analysis fails with %s", a.Code),
			Actual:   "analysis succeeded",
			Edges:    r.Edges,
		}
	}
	if r.ErrorCode != a.Code {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("analysis fails with %s", a.Code),
			Actual:   r.RunError,
		}
	}
	return nil
}

func toInts(ids []ir.EventID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	slices.Sort(out)
	return out
}

func sortedCopy(ids []int64) []int64 {
	out := slices.Clone(ids)
	if out == nil {
		out = []int64{}
	}
	slices.Sort(out)
	return out
}
