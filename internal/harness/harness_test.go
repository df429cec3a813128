package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/happensbefore/internal/ir"
)

const scenarioDir = "../../testdata/scenarios"

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_InlineScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "inline",
		Description: "barrier request with nothing outstanding",
		Schema:      "builtin:sts",
		Events: []EventStep{
			{Type: "TraceOfMessageToController", Fields: map[string]any{
				"dpid": 1, "cid": 1, "msg": 10, "msg_type": "OFPT_PACKET_IN",
			}},
		},
		Assertions: []Assertion{
			{Type: AssertEdgeCount, Count: 0},
			{Type: AssertCandidates, Events: []int64{0}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Edges)
	assert.Equal(t, []ir.EventID{0}, result.Candidates)
	assert.NotNil(t, result.Graph)
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario := loadTestScenario(t, "sts_full")
	scenario.Assertions = []Assertion{
		{Type: AssertEdge, From: 1, To: 2, Rule: "transfer"},
		{Type: AssertNoEdge, From: 5, To: 6},
		{Type: AssertEdgeCount, Count: 1},
		{Type: AssertPredecessors, Event: 8, Events: []int64{6}},
		{Type: AssertCandidates, Events: []int64{1}},
		{Type: AssertRetired, Events: []int64{16}},
		{Type: AssertSameTag, Events: []int64{1, 10}},
		{Type: AssertEdge, From: 0, To: 16},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 8)
	assert.Contains(t, result.Errors[0], "produced by same_actor")
	assert.Contains(t, result.Errors[1], "edge present (transfer)")
	assert.Contains(t, result.Errors[2], "1 edges")
	assert.Contains(t, result.Errors[3], "predecessors of 8 = [6]")
	assert.Contains(t, result.Errors[4], "candidates [1]")
	assert.Contains(t, result.Errors[5], "event 16 consumed")
	assert.Contains(t, result.Errors[6], "event 10")
	assert.Contains(t, result.Errors[7], "not found")
}

func TestRun_UnexpectedFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown_kind",
		Description: "kind outside the schema",
		Schema:      "builtin:sts",
		Events:      []EventStep{{Type: "NoSuchKind"}},
		Assertions:  []Assertion{{Type: AssertEdgeCount}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "UNKNOWN_KIND", result.ErrorCode)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "analysis failed unexpectedly")
	assert.Nil(t, result.Graph)
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	scenario := loadTestScenario(t, "sts_full")
	scenario.Assertions = []Assertion{{Type: AssertError, Code: "AMBIGUOUS_MATCH"}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "analysis succeeded")
}

func TestRun_WrongErrorCode(t *testing.T) {
	scenario := loadTestScenario(t, "proxy_dangling")
	scenario.Assertions = []Assertion{{Type: AssertError, Code: "AMBIGUOUS_MATCH"}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "DANGLING_REFERENCE")
}

func TestRun_SchemaNotFound(t *testing.T) {
	scenario := &Scenario{Schema: "/nonexistent/schema.cue"}
	_, err := Run(scenario)
	assert.ErrorContains(t, err, "failed to load schema")
}

func TestRun_ScenarioFiles(t *testing.T) {
	for _, name := range []string{
		"sts_full",
		"proxy_current_packet_in",
		"proxy_dangling",
		"modification_end_mandatory",
		"barriers_fifo",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
