package store

import (
	"context"
	"fmt"

	"github.com/roach88/happensbefore/internal/ir"
)

// ReadTrace returns the stored input events of a run, ordered by id, ready
// to be analyzed again. Analysis results (node, tag, candidate) are dropped.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]ir.Event, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	stored, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	events := make([]ir.Event, len(stored))
	for i, ev := range stored {
		events[i] = ev.Event
	}
	return events, nil
}

// ReplayResult compares a re-analysis against what was stored.
type ReplayResult struct {
	Run          Run
	ReplayDigest string
	Missing      []ir.Edge // stored but not reproduced
	Extra        []ir.Edge // reproduced but not stored
}

// Match reports whether the re-analysis reproduced the stored graph.
func (r ReplayResult) Match() bool {
	return r.Run.GraphDigest == r.ReplayDigest && len(r.Missing) == 0 && len(r.Extra) == 0
}

// CompareReplay diffs edges produced by a re-analysis against a stored run.
func (s *Store) CompareReplay(ctx context.Context, runID string, digest string, edges []ir.Edge) (ReplayResult, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("compare replay: %w", err)
	}
	stored, err := s.ReadEdges(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("compare replay: %w", err)
	}

	type key struct{ from, to ir.EventID }
	index := func(es []ir.Edge) map[key]ir.Edge {
		m := make(map[key]ir.Edge, len(es))
		for _, e := range es {
			m[key{e.From, e.To}] = e
		}
		return m
	}
	have, got := index(stored), index(edges)

	result := ReplayResult{Run: run, ReplayDigest: digest}
	for _, e := range stored {
		if g, ok := got[key{e.From, e.To}]; !ok || g.Rule != e.Rule {
			result.Missing = append(result.Missing, e)
		}
	}
	for _, e := range edges {
		if h, ok := have[key{e.From, e.To}]; !ok || h.Rule != e.Rule {
			result.Extra = append(result.Extra, e)
		}
	}
	ir.SortEdges(result.Extra)
	return result, nil
}
