package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/stretchr/testify/require"
)

// testFields is the field map shared by the hand-built test schemas.
var testFields = ir.FieldMap{
	Location:        "loc",
	Channel:         "cid",
	Message:         "msg",
	MessageKind:     "mt",
	Buffer:          "buf",
	BackReference:   "ref",
	Object:          "obj",
	ObjectReference: "oref",
}

// testSchema is a small vocabulary exercising every rule:
//
//	Send -transfer-> Receive -same_actor(tag)-> Process
//	Receive -same_actor(message)-> Emit
//	Receive -same_actor(buffer)-> Drain
//	Receive -back_reference-> Ack (mandatory)
//	Op* -barrier_join-> SyncReply -persistent-> SyncRequest
func testSchema() *ir.Schema {
	kinds := []*ir.KindSpec{
		{Name: "Register", Role: ir.RoleRegister, Index: ir.IndexSpec{Mode: ir.IndexNone}},
		{Name: "Deregister", Role: ir.RoleDeregister, Index: ir.IndexSpec{Mode: ir.IndexNone}},
		{Name: "Note", Role: ir.RoleIgnored, Index: ir.IndexSpec{Mode: ir.IndexNone}},
		{
			Name: "Send", Role: ir.RoleOrdinary, Trackable: true,
			Predecessors: []string{"Process"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleSameActor, Key: ir.KeyTag}},
			Index:        ir.IndexSpec{Mode: ir.IndexInsert},
		},
		{
			Name: "Receive", Role: ir.RoleOrdinary, Trackable: true,
			Predecessors: []string{"Send"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleTransfer, From: []string{"Send"}}},
			Index:        ir.IndexSpec{Mode: ir.IndexInsert},
		},
		{
			Name: "Process", Role: ir.RoleOrdinary, Trackable: true,
			Predecessors: []string{"Receive"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleSameActor, Key: ir.KeyTag}},
			Index:        ir.IndexSpec{Mode: ir.IndexInsert},
		},
		{
			Name: "Emit", Role: ir.RoleOrdinary,
			Predecessors: []string{"Receive"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleSameActor, Key: ir.KeyMessage}},
			Index:        ir.IndexSpec{Mode: ir.IndexNone},
		},
		{
			Name: "Drain", Role: ir.RoleOrdinary,
			Predecessors: []string{"Receive"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleSameActor, Key: ir.KeyBuffer}},
			Index:        ir.IndexSpec{Mode: ir.IndexNone},
		},
		{
			Name: "Ack", Role: ir.RoleOrdinary, Mandatory: true,
			Predecessors: []string{"Receive"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleBackReference}},
			Index:        ir.IndexSpec{Mode: ir.IndexNone},
		},
		{
			Name: "Status", Role: ir.RoleOrdinary,
			Index: ir.IndexSpec{Mode: ir.IndexReplace, Equivalence: []string{"loc", "cid"}},
		},
		{Name: "Request", Role: ir.RoleOrdinary, Index: ir.IndexSpec{Mode: ir.IndexNone}},
		{Name: "Op", Role: ir.RoleOrdinary, Index: ir.IndexSpec{Mode: ir.IndexNone}},
		{
			Name: "SyncRequest", Role: ir.RoleOrdinary,
			Predecessors: []string{"SyncReply"},
			Rules:        []ir.RuleSpec{{Rule: ir.RulePersistent}},
			Index:        ir.IndexSpec{Mode: ir.IndexNone},
		},
		{
			Name: "SyncReply", Role: ir.RoleOrdinary,
			Predecessors: []string{"Op"},
			Rules:        []ir.RuleSpec{{Rule: ir.RuleBarrierJoin}},
			Index:        ir.IndexSpec{Mode: ir.IndexNone},
		},
	}

	s := &ir.Schema{
		Name:   "test",
		Fields: testFields,
		Topology: &ir.Topology{
			Self: []string{"loc", "port"},
			Peer: []string{"peer_loc", "peer_port"},
		},
		Barrier: &ir.BarrierSpec{
			Members: []string{"Op"},
			Channel: []string{"loc"},
			Request: ir.Selector{Kind: "SyncRequest"},
			Reply:   ir.Selector{Kind: "SyncReply"},
			Match:   ir.MatchUnique,
		},
		Kinds: make(map[string]*ir.KindSpec, len(kinds)),
	}
	for _, k := range kinds {
		s.Kinds[k.Name] = k
	}
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runTrace dispatches events and returns the run state for inspection.
func runTrace(t *testing.T, schema *ir.Schema, events []ir.Event) (*run, error) {
	t.Helper()
	a := New(schema)
	return a.execute(context.Background(), quietLogger(), events)
}

// mustRun dispatches events and fails the test on error.
func mustRun(t *testing.T, schema *ir.Schema, events []ir.Event) *run {
	t.Helper()
	r, err := runTrace(t, schema, events)
	require.NoError(t, err)
	return r
}

// edgeSet renders edges as "from->to" strings for compact assertions.
func edgeSet(g *Graph) []string {
	var out []string
	for _, e := range g.Edges() {
		out = append(out, edgeString(e))
	}
	return out
}

func edgeString(e ir.Edge) string {
	return fmt.Sprintf("%d->%d", e.From, e.To)
}
