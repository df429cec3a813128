package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/happensbefore/internal/ir"
)

// ErrRunNotFound is returned when a run id (or "latest") names no stored run.
var ErrRunNotFound = errors.New("run not found")

// StoredEvent is an event together with what the analysis learned about it.
type StoredEvent struct {
	ir.Event
	Node      bool
	Tag       int64
	Candidate bool
}

const runColumns = `id, seq, schema_name, schema_hash, trace_path, graph_digest,
		analyzer_version, ir_version, event_count, edge_count`

// ReadRun retrieves a single run by id.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return run, err
}

// LatestRun returns the run with the highest sequence number.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	return run, err
}

// ResolveRun accepts a run id or the word "latest".
func (s *Store) ResolveRun(ctx context.Context, ref string) (Run, error) {
	if ref == "" || ref == "latest" {
		return s.LatestRun(ctx)
	}
	return s.ReadRun(ctx, ref)
}

// ListRuns returns all runs ordered by seq ASC.
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns every event of a run ordered by id.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]StoredEvent, error) {
	return s.queryEvents(ctx, `
		SELECT id, kind, fields, is_node, tag, candidate
		FROM events
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
}

// ReadEventsOfKind returns the events of one kind ordered by id.
func (s *Store) ReadEventsOfKind(ctx context.Context, runID, kind string) ([]StoredEvent, error) {
	return s.queryEvents(ctx, `
		SELECT id, kind, fields, is_node, tag, candidate
		FROM events
		WHERE run_id = ? AND kind = ?
		ORDER BY id ASC
	`, runID, kind)
}

// ReadEdges returns every edge of a run ordered by (from, to).
func (s *Store) ReadEdges(ctx context.Context, runID string) ([]ir.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT from_id, to_id, rule FROM edges
		WHERE run_id = ?
		ORDER BY from_id ASC, to_id ASC
	`, runID)
}

// Predecessors returns the edges ending at the event, ordered by source.
// Answers: "what directly happened before this event?"
func (s *Store) Predecessors(ctx context.Context, runID string, id ir.EventID) ([]ir.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT from_id, to_id, rule FROM edges
		WHERE run_id = ? AND to_id = ?
		ORDER BY from_id ASC
	`, runID, int64(id))
}

// Successors returns the edges starting at the event, ordered by target.
// Answers: "what did this event directly enable?"
func (s *Store) Successors(ctx context.Context, runID string, id ir.EventID) ([]ir.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT from_id, to_id, rule FROM edges
		WHERE run_id = ? AND from_id = ?
		ORDER BY to_id ASC
	`, runID, int64(id))
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []StoredEvent{}
	for rows.Next() {
		var (
			ev         StoredEvent
			id         int64
			fieldsJSON string
			node, cand int
		)
		if err := rows.Scan(&id, &ev.Kind, &fieldsJSON, &node, &ev.Tag, &cand); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		fields, err := unmarshalFields(fieldsJSON)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", id, err)
		}
		ev.ID = ir.EventID(id)
		ev.Fields = fields
		ev.Node = node != 0
		ev.Candidate = cand != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]ir.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	edges := []ir.Edge{}
	for rows.Next() {
		var from, to int64
		var rule string
		if err := rows.Scan(&from, &to, &rule); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, ir.Edge{From: ir.EventID(from), To: ir.EventID(to), Rule: ir.RuleKind(rule)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (Run, error) {
	var run Run
	err := r.Scan(
		&run.ID, &run.Seq, &run.SchemaName, &run.SchemaHash, &run.TracePath, &run.GraphDigest,
		&run.AnalyzerVersion, &run.IRVersion, &run.EventCount, &run.EdgeCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}
