package ir

import (
	"cmp"
	"slices"
)

// EventID is the position of an event in the trace. Ids are unique and
// their order is the order in which the events were observed.
type EventID int64

// Event is one record of the instrumentation trace.
// Kind names a member of the schema's kind enumeration; Fields holds every
// other attribute of the record. Events are write-once.
type Event struct {
	ID     EventID `json:"id"`
	Kind   string  `json:"type"`
	Fields Object  `json:"fields"`
}

// Field returns the named field. A field holding JSON null is absent.
func (e *Event) Field(name string) (Value, bool) {
	if name == "" || e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[name]
	if !ok {
		return nil, false
	}
	if _, isNull := v.(Null); isNull {
		return nil, false
	}
	return v, true
}

// Has reports whether the named field is present.
func (e *Event) Has(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// IntField returns the named field when it is present and an integer.
func (e *Event) IntField(name string) (int64, bool) {
	v, ok := e.Field(name)
	if !ok {
		return 0, false
	}
	n, ok := v.(Int)
	return int64(n), ok
}

// BoolField returns the named field when it is present and a boolean.
func (e *Event) BoolField(name string) (bool, bool) {
	v, ok := e.Field(name)
	if !ok {
		return false, false
	}
	b, ok := v.(Bool)
	return bool(b), ok
}

// TextField returns the named field rendered with Text.
func (e *Event) TextField(name string) (string, bool) {
	v, ok := e.Field(name)
	if !ok {
		return "", false
	}
	return Text(v), true
}

// SortEvents orders events by id.
func SortEvents(events []*Event) {
	slices.SortFunc(events, func(a, b *Event) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// Edge is a happens-before relation: From happened before To.
// Rule names the matching rule that produced it.
type Edge struct {
	From EventID  `json:"from"`
	To   EventID  `json:"to"`
	Rule RuleKind `json:"rule"`
}

// SortEdges orders edges by (From, To).
func SortEdges(edges []Edge) {
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
}
