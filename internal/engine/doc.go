// Package engine builds happens-before graphs from event traces.
//
// A run is a single forward pass over the trace in ascending event id.
// Each event is routed by the role its kind has in the schema:
//
//   - register and deregister events maintain the identity registry
//   - correlation events feed the proxy correlator
//   - ignored events are skipped
//   - ordinary events run the matching pipeline
//
// The pipeline for an ordinary event propagates its identity tag, updates
// the barrier accumulator, runs the kind's rules in declared order (the
// first rule that finds a predecessor wins), enforces mandatory kinds and
// finally applies the kind's index policy so the event can become a
// predecessor of later events.
//
// Every rule follows the single-selection discipline: candidates are
// filtered through the compatibility table, zero matches is an abstention
// and more than one is fatal. Any violation aborts the run with an *Error
// and no partial graph.
//
// Runs are deterministic. The same schema and trace always produce the
// same edge set, so Graph.Digest is stable across runs.
package engine
