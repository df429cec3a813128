package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
)

// RunMeta carries the run attributes the graph itself does not know.
type RunMeta struct {
	SchemaHash string
	TracePath  string
}

// Run is one stored analysis.
type Run struct {
	ID              string
	Seq             int64
	SchemaName      string
	SchemaHash      string
	TracePath       string
	GraphDigest     string
	AnalyzerVersion string
	IRVersion       string
	EventCount      int
	EdgeCount       int
}

// WriteRun stores a completed graph as a new run.
//
// The run, its events and its edges are written in a single transaction;
// either all of them become visible or none do. Runs are numbered with a
// logical sequence (MAX(seq)+1), never with wall time.
func (s *Store) WriteRun(ctx context.Context, g *engine.Graph, meta RunMeta) (Run, error) {
	digest, err := g.Digest()
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	run := Run{
		ID:              s.runID.Generate(),
		SchemaName:      g.SchemaName(),
		SchemaHash:      meta.SchemaHash,
		TracePath:       meta.TracePath,
		GraphDigest:     digest,
		AnalyzerVersion: ir.AnalyzerVersion,
		IRVersion:       ir.SchemaVersion,
		EventCount:      len(g.Events()),
		EdgeCount:       g.EdgeCount(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("write run: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, schema_name, schema_hash, trace_path, graph_digest, analyzer_version, ir_version, event_count, edge_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Seq, run.SchemaName, run.SchemaHash, run.TracePath,
		run.GraphDigest, run.AnalyzerVersion, run.IRVersion, run.EventCount, run.EdgeCount,
	); err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	if err := writeEvents(ctx, tx, run.ID, g); err != nil {
		return Run{}, err
	}
	if err := writeEdges(ctx, tx, run.ID, g.Edges()); err != nil {
		return Run{}, err
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}

func writeEvents(ctx context.Context, tx *sql.Tx, runID string, g *engine.Graph) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, id, kind, fields, is_node, tag, candidate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	candidates := make(map[ir.EventID]bool)
	for _, id := range g.Candidates() {
		candidates[id] = true
	}

	for _, ev := range g.Events() {
		fields, err := marshalFields(ev.Fields)
		if err != nil {
			return fmt.Errorf("write event %d: %w", ev.ID, err)
		}
		tag, _ := g.Tag(ev.ID)
		if _, err := stmt.ExecContext(ctx,
			runID, int64(ev.ID), ev.Kind, fields,
			boolToInt(g.IsNode(ev.ID)), int64(tag), boolToInt(candidates[ev.ID]),
		); err != nil {
			return fmt.Errorf("write event %d: %w", ev.ID, err)
		}
	}
	return nil
}

func writeEdges(ctx context.Context, tx *sql.Tx, runID string, edges []ir.Edge) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (run_id, from_id, to_id, rule) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write edges: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, runID, int64(e.From), int64(e.To), string(e.Rule)); err != nil {
			return fmt.Errorf("write edge %d -> %d: %w", e.From, e.To, err)
		}
	}
	return nil
}

// DeleteRun removes a run with its events and edges.
// Returns ErrRunNotFound if no such run exists.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
