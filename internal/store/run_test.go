package store

import (
	"context"
	"testing"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	s.SetRunIDGenerator(testutil.NewFixedRunIDGenerator("run-sts"))
	g := analyzeSTS(t)

	run, err := s.WriteRun(ctx, g, RunMeta{SchemaHash: "hash", TracePath: "sts.jsonl"})
	require.NoError(t, err)

	digest, err := g.Digest()
	require.NoError(t, err)

	assert.Equal(t, "run-sts", run.ID)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, "sts-openflow", run.SchemaName)
	assert.Equal(t, digest, run.GraphDigest)
	assert.Equal(t, ir.AnalyzerVersion, run.AnalyzerVersion)
	assert.Equal(t, ir.SchemaVersion, run.IRVersion)
	assert.Equal(t, len(g.Events()), run.EventCount)
	assert.Equal(t, g.EdgeCount(), run.EdgeCount)

	stored, err := s.ReadRun(ctx, "run-sts")
	require.NoError(t, err)
	assert.Equal(t, run, stored)

	edges, err := s.ReadEdges(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Edges(), edges)
}

func TestWriteRun_EventsCarryAnalysis(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := analyzeSTS(t)

	run, err := s.WriteRun(ctx, g, RunMeta{})
	require.NoError(t, err)

	events, err := s.ReadEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, len(g.Events()))

	candidates := map[ir.EventID]bool{}
	for _, id := range g.Candidates() {
		candidates[id] = true
	}

	for i, ev := range events {
		want := g.Events()[i]
		assert.Equal(t, want.ID, ev.ID)
		assert.Equal(t, want.Kind, ev.Kind)
		assert.Equal(t, want.Fields, ev.Fields, "event %d fields", ev.ID)
		assert.Equal(t, g.IsNode(ev.ID), ev.Node, "event %d node", ev.ID)
		assert.Equal(t, candidates[ev.ID], ev.Candidate, "event %d candidate", ev.ID)
		tag, _ := g.Tag(ev.ID)
		assert.Equal(t, int64(tag), ev.Tag, "event %d tag", ev.ID)
	}
}

func TestWriteRun_SeqIsLogical(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	s.SetRunIDGenerator(NewSequenceGenerator("a", "b", "c"))
	g := analyzeSTS(t)

	for _, want := range []int64{1, 2, 3} {
		run, err := s.WriteRun(ctx, g, RunMeta{})
		require.NoError(t, err)
		assert.Equal(t, want, run.Seq)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)
}

func TestWriteRun_DuplicateIDRollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	s.SetRunIDGenerator(testutil.NewFixedRunIDGenerator("same"))
	g := analyzeSTS(t)

	_, err := s.WriteRun(ctx, g, RunMeta{})
	require.NoError(t, err)

	_, err = s.WriteRun(ctx, g, RunMeta{})
	require.Error(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestReadRun_NotFound(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.ReadRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.ResolveRun(ctx, "latest")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_EmptyNotNil(t *testing.T) {
	runs, err := createTestStore(t).ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestNeighbours(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	run, err := s.WriteRun(ctx, analyzeSTS(t), RunMeta{})
	require.NoError(t, err)

	preds, err := s.Predecessors(ctx, run.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, []ir.Edge{{From: 13, To: 15, Rule: ir.RuleBarrierJoin}}, preds)

	succs, err := s.Successors(ctx, run.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, []ir.Edge{{From: 15, To: 16, Rule: ir.RulePersistent}}, succs)

	none, err := s.Predecessors(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadEventsOfKind(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := analyzeSTS(t)
	run, err := s.WriteRun(ctx, g, RunMeta{})
	require.NoError(t, err)

	kind := g.Events()[5].Kind
	events, err := s.ReadEventsOfKind(ctx, run.ID, kind)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, kind, ev.Kind)
	}
}

func TestDeleteRun_Cascades(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	run, err := s.WriteRun(ctx, analyzeSTS(t), RunMeta{})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRun(ctx, run.ID))

	events, err := s.ReadEvents(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	edges, err := s.ReadEdges(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)

	assert.ErrorIs(t, s.DeleteRun(ctx, run.ID), ErrRunNotFound)
}

func TestReadTrace_ReproducesGraph(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := analyzeSTS(t)
	run, err := s.WriteRun(ctx, g, RunMeta{})
	require.NoError(t, err)

	events, err := s.ReadTrace(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, testutil.STSTrace(), events)

	again := analyze(t, events)
	digest, err := again.Digest()
	require.NoError(t, err)

	result, err := s.CompareReplay(ctx, run.ID, digest, again.Edges())
	require.NoError(t, err)
	assert.True(t, result.Match())
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Extra)
}

func TestCompareReplay_ReportsDifferences(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g := analyzeSTS(t)
	run, err := s.WriteRun(ctx, g, RunMeta{})
	require.NoError(t, err)

	edges := g.Edges()
	changed := append([]ir.Edge{}, edges[1:]...)
	changed = append(changed, ir.Edge{From: 0, To: 16, Rule: ir.RuleTransfer})

	result, err := s.CompareReplay(ctx, run.ID, "other", changed)
	require.NoError(t, err)
	assert.False(t, result.Match())
	assert.Equal(t, []ir.Edge{edges[0]}, result.Missing)
	assert.Equal(t, []ir.Edge{{From: 0, To: 16, Rule: ir.RuleTransfer}}, result.Extra)
}

func TestReadTrace_UnknownRun(t *testing.T) {
	_, err := createTestStore(t).ReadTrace(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMarshalFields_Canonical(t *testing.T) {
	got, err := marshalFields(ir.Object{"b": ir.Int(2), "a": ir.String("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2}`, got)

	empty, err := marshalFields(nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, empty)

	back, err := unmarshalFields(`{"a":"x","b":9007199254740993}`)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"a": ir.String("x"), "b": ir.Int(9007199254740993)}, back)
}
