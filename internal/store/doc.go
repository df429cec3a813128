// Package store provides SQLite-backed durable storage for analysis runs.
//
// Each run stores:
//   - Runs: one row per analysis (schema, digest, versions, counts)
//   - Events: the input trace with per-event analysis results
//   - Edges: the happens-before edges and the rule that produced each
//
// # Critical Patterns
//
// Logical Ordering
//   - Runs are ordered by seq INTEGER (logical counter), NEVER timestamps
//   - Events and edges are ordered by event id
//
// Deterministic Query Results
//   - Every query carries an explicit ORDER BY
//   - Event fields are stored as canonical JSON, so identical traces
//     produce identical rows
//
// Atomic Runs
//   - A run and all its rows are written in one transaction
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
