package testutil

import (
	"fmt"

	"github.com/roach88/happensbefore/internal/ir"
)

// Ev builds an event from alternating field names and Go values.
//
// Panics on an odd argument count or an unsupported value, so fixtures
// fail loudly:
//
//	testutil.Ev(3, "HostSend", "dpid", 1, "buf", "b0")
func Ev(id int64, kind string, kv ...any) ir.Event {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("testutil.Ev(%d, %s): odd field list", id, kind))
	}
	fields := ir.Object{}
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("testutil.Ev(%d, %s): field name %v is not a string", id, kind, kv[i]))
		}
		v, err := ir.FromGo(kv[i+1])
		if err != nil {
			panic(fmt.Sprintf("testutil.Ev(%d, %s): field %s: %v", id, kind, name, err))
		}
		fields[name] = v
	}
	return ir.Event{ID: ir.EventID(id), Kind: kind, Fields: fields}
}

// TraceBuilder assigns consecutive ids to events, starting at 0.
//
// Not safe for concurrent use.
type TraceBuilder struct {
	next   int64
	events []ir.Event
}

// NewTraceBuilder creates an empty builder.
func NewTraceBuilder() *TraceBuilder {
	return &TraceBuilder{}
}

// Add appends an event and returns its id.
func (b *TraceBuilder) Add(kind string, kv ...any) ir.EventID {
	ev := Ev(b.next, kind, kv...)
	b.next++
	b.events = append(b.events, ev)
	return ev.ID
}

// Skip advances the id counter without emitting an event.
func (b *TraceBuilder) Skip(n int64) {
	b.next += n
}

// Events returns a copy of the events added so far.
func (b *TraceBuilder) Events() []ir.Event {
	out := make([]ir.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset empties the builder. The next id is 0 again.
func (b *TraceBuilder) Reset() {
	b.next = 0
	b.events = nil
}
