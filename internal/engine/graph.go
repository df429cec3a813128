package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/happensbefore/internal/ir"
)

// ErrBackwardEdge is returned when an edge would not point forward in the trace.
var ErrBackwardEdge = errors.New("edge does not point forward in trace order")

type edgeKey struct{ from, to ir.EventID }

// Graph is the happens-before graph of one trace.
//
// Edges are only ever added, and only from a lower to a higher event id,
// so the graph is acyclic by construction.
type Graph struct {
	schemaName string
	events     []*ir.Event
	byID       map[ir.EventID]*ir.Event
	nodes      map[ir.EventID]bool
	tags       map[ir.EventID]Tag
	edges      []ir.Edge
	edgeSet    map[edgeKey]bool
	preds      map[ir.EventID][]ir.EventID
	succs      map[ir.EventID][]ir.EventID
	candidates []ir.EventID
}

func newGraph(schema *ir.Schema, events []*ir.Event, byID map[ir.EventID]*ir.Event) *Graph {
	g := &Graph{
		schemaName: schema.Name,
		events:     events,
		byID:       byID,
		nodes:      make(map[ir.EventID]bool, len(events)),
		tags:       make(map[ir.EventID]Tag),
		edgeSet:    make(map[edgeKey]bool),
		preds:      make(map[ir.EventID][]ir.EventID),
		succs:      make(map[ir.EventID][]ir.EventID),
	}
	for _, ev := range events {
		if k, ok := schema.Kind(ev.Kind); ok && !k.Role.Bookkeeping() {
			g.nodes[ev.ID] = true
		}
	}
	return g
}

// addEdge records before -> after. Adding an existing edge is a no-op.
func (g *Graph) addEdge(before, after ir.EventID, rule ir.RuleKind) (bool, error) {
	if before >= after {
		return false, fmt.Errorf("%d -> %d: %w", before, after, ErrBackwardEdge)
	}
	k := edgeKey{before, after}
	if g.edgeSet[k] {
		return false, nil
	}
	g.edgeSet[k] = true
	g.edges = append(g.edges, ir.Edge{From: before, To: after, Rule: rule})
	g.preds[after] = append(g.preds[after], before)
	g.succs[before] = append(g.succs[before], after)
	return true, nil
}

// SchemaName returns the name of the schema the graph was built with.
func (g *Graph) SchemaName() string { return g.schemaName }

// Events returns every event of the trace in id order.
func (g *Graph) Events() []*ir.Event {
	return slices.Clone(g.events)
}

// Nodes returns the events that can take part in edges, in id order.
// Bookkeeping events (registration, correlation records) are excluded.
func (g *Graph) Nodes() []*ir.Event {
	out := make([]*ir.Event, 0, len(g.nodes))
	for _, ev := range g.events {
		if g.nodes[ev.ID] {
			out = append(out, ev)
		}
	}
	return out
}

// IsNode reports whether id is a graph node.
func (g *Graph) IsNode(id ir.EventID) bool { return g.nodes[id] }

// Event returns the event with id.
func (g *Graph) Event(id ir.EventID) (*ir.Event, bool) {
	ev, ok := g.byID[id]
	return ev, ok
}

// Edges returns all edges ordered by (From, To).
func (g *Graph) Edges() []ir.Edge {
	out := slices.Clone(g.edges)
	ir.SortEdges(out)
	return out
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether before -> after is in the graph.
func (g *Graph) HasEdge(before, after ir.EventID) bool {
	return g.edgeSet[edgeKey{before, after}]
}

// Predecessors returns the direct predecessors of id in ascending order.
func (g *Graph) Predecessors(id ir.EventID) []ir.EventID {
	out := slices.Clone(g.preds[id])
	slices.Sort(out)
	return out
}

// Successors returns the direct successors of id in ascending order.
func (g *Graph) Successors(id ir.EventID) []ir.EventID {
	out := slices.Clone(g.succs[id])
	slices.Sort(out)
	return out
}

// Tag returns the identity tag the event carried, if any.
func (g *Graph) Tag(id ir.EventID) (Tag, bool) {
	t, ok := g.tags[id]
	return t, ok
}

// Candidates returns the events still in the candidate index when the
// run finished.
func (g *Graph) Candidates() []ir.EventID {
	return slices.Clone(g.candidates)
}

// TopologicalOrder returns all nodes so that every edge points forward.
// Ties are broken by event id, so the order is deterministic.
func (g *Graph) TopologicalOrder() ([]ir.EventID, error) {
	indegree := make(map[ir.EventID]int, len(g.nodes))
	for _, e := range g.edges {
		indegree[e.To]++
	}

	var ready []ir.EventID
	for _, ev := range g.events {
		if g.nodes[ev.ID] && indegree[ev.ID] == 0 {
			ready = append(ready, ev.ID)
		}
	}

	order := make([]ir.EventID, 0, len(g.nodes))
	for len(ready) > 0 {
		slices.Sort(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range g.succs[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("graph has a cycle: ordered %d of %d nodes", len(order), len(g.nodes))
	}
	return order, nil
}

// Digest identifies the edge set, including the rule behind each edge.
func (g *Graph) Digest() (string, error) {
	return ir.GraphDigest(g.Edges())
}
