// Package export renders a happens-before graph for people and tools.
//
// Two formats are supported:
//   - DOT for Graphviz: one node per non-bookkeeping event, one edge per
//     happens-before relation labelled with the rule that produced it
//   - JSON: canonical JSON with nodes, edges, candidates and the graph digest
//
// Both writers are pure functions of the graph. Nodes and edges are
// emitted in id order, so the output is byte-for-byte reproducible.
package export
