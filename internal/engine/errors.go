package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// Error is a fatal invariant violation detected while building the graph.
//
// Every error aborts the run; no partial graph is returned. The error names
// the offending event and, for matching failures, the rule and the
// candidate set that broke the single-selection discipline.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// EventID is the event being dispatched when the violation occurred.
	EventID ir.EventID

	// Kind is the kind of that event.
	Kind string

	// Rule is the matching rule involved, if any.
	Rule ir.RuleKind

	// Message is a human-readable description.
	Message string

	// Candidates lists the events that competed for a single match.
	Candidates []ir.EventID
}

// ErrorCode categorizes fatal errors.
type ErrorCode string

const (
	// ErrCodeAmbiguousMatch indicates more than one compatible candidate.
	ErrCodeAmbiguousMatch ErrorCode = "AMBIGUOUS_MATCH"

	// ErrCodeMissingPredecessor indicates a mandatory kind found no predecessor.
	ErrCodeMissingPredecessor ErrorCode = "MISSING_PREDECESSOR"

	// ErrCodeIdentityViolation indicates a registry precondition failed.
	ErrCodeIdentityViolation ErrorCode = "IDENTITY_VIOLATION"

	// ErrCodeDuplicateConsumption indicates a candidate or sync bucket was
	// consumed twice.
	ErrCodeDuplicateConsumption ErrorCode = "DUPLICATE_CONSUMPTION"

	// ErrCodeIncompatibleEdge indicates an edge outside the compatibility table.
	ErrCodeIncompatibleEdge ErrorCode = "INCOMPATIBLE_EDGE"

	// ErrCodeUnknownKind indicates an event kind outside the schema.
	ErrCodeUnknownKind ErrorCode = "UNKNOWN_KIND"

	// ErrCodeDanglingReference indicates a reference to an event or
	// correlation record that does not exist.
	ErrCodeDanglingReference ErrorCode = "DANGLING_REFERENCE"

	// ErrCodeInvalidTrace indicates structural trace problems such as
	// duplicate ids or forward references.
	ErrCodeInvalidTrace ErrorCode = "INVALID_TRACE"
)

// KnownCode reports whether c is one of the codes above.
func KnownCode(c ErrorCode) bool {
	switch c {
	case ErrCodeAmbiguousMatch, ErrCodeMissingPredecessor, ErrCodeIdentityViolation,
		ErrCodeDuplicateConsumption, ErrCodeIncompatibleEdge, ErrCodeUnknownKind,
		ErrCodeDanglingReference, ErrCodeInvalidTrace:
		return true
	}
	return false
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (event=%d", e.Code, e.Message, e.EventID)
	if e.Kind != "" {
		fmt.Fprintf(&b, ", kind=%s", e.Kind)
	}
	if e.Rule != "" {
		fmt.Fprintf(&b, ", rule=%s", e.Rule)
	}
	if len(e.Candidates) > 0 {
		ids := make([]string, len(e.Candidates))
		for i, id := range e.Candidates {
			ids[i] = fmt.Sprintf("%d", id)
		}
		fmt.Fprintf(&b, ", candidates=[%s]", strings.Join(ids, " "))
	}
	b.WriteByte(')')
	return b.String()
}

// CodeOf returns the code of an *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsAmbiguous returns true if the error is an ambiguous match.
// Uses errors.As to handle wrapped errors.
func IsAmbiguous(err error) bool {
	return CodeOf(err) == ErrCodeAmbiguousMatch
}

// IsIdentityViolation returns true if the error is a registry violation.
func IsIdentityViolation(err error) bool {
	return CodeOf(err) == ErrCodeIdentityViolation
}

// IsDuplicateConsumption returns true if something was consumed twice.
func IsDuplicateConsumption(err error) bool {
	return CodeOf(err) == ErrCodeDuplicateConsumption
}

func newError(code ErrorCode, ev *ir.Event, format string, args ...any) *Error {
	e := &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	if ev != nil {
		e.EventID = ev.ID
		e.Kind = ev.Kind
	}
	return e
}

func ambiguousError(ev *ir.Event, rule ir.RuleKind, candidates []*ir.Event) *Error {
	e := newError(ErrCodeAmbiguousMatch, ev, "%d compatible candidates, expected at most one", len(candidates))
	e.Rule = rule
	for _, c := range candidates {
		e.Candidates = append(e.Candidates, c.ID)
	}
	return e
}
