// Package harness provides conformance testing for happens-before schemas.
//
// A scenario is a small trace plus assertions about the graph the analyzer
// builds from it, or about the error the analysis must fail with.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: packet_handoff
//	description: "A packet crossing a link is ordered by transfer"
//	schema: builtin:sts
//	events:
//	  - type: TracePacketRegister
//	    fields: { packet_obj_id: 100 }
//	  - type: TraceDpPacketOutSwitch
//	    fields: { dpid: 1, packet_register_event_id: 0 }
//	assertions:
//	  - type: edge
//	    from: 1
//	    to: 2
//	    rule: transfer
//	  - type: candidates
//	    events: [2]
//
// Event ids default to the event's position in the list. A scenario may
// name a JSONL trace file instead of listing events inline.
//
// # Assertion Types
//
//   - edge / no_edge: an edge is present (optionally by a given rule) or absent
//   - edge_count: the exact number of edges
//   - predecessors: the exact immediate predecessors of one event
//   - candidates: the exact final candidate set
//   - retired: events that were consumed as predecessors
//   - same_tag: events that share one identity tag
//   - error: the analysis fails with the given code (exclusive)
//
// # Golden Snapshots
//
// RunWithGolden compares the DOT rendering of the graph (or the error code)
// against testdata/golden/{name}.golden. RunDir does the same for a whole
// directory of scenarios and is what "hb test" runs.
package harness
