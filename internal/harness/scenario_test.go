package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/happensbefore/internal/ir"
)

// writeScenario writes content to a temporary scenario file.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: handoff
description: "inline events"
schema: builtin:sts
events:
  - type: TracePacketRegister
    fields: { packet_obj_id: 100 }
  - id: 5
    type: TraceDpPacketInSwitch
    fields: { dpid: 1, packet_register_event_id: 0, packet: "pkt-1" }
assertions:
  - type: edge_count
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "handoff", scenario.Name)
	assert.Equal(t, "builtin:sts", scenario.Schema, "builtin references are not resolved as paths")
	require.Len(t, scenario.Events, 2)
	assert.Nil(t, scenario.Events[0].ID)
	require.NotNil(t, scenario.Events[1].ID)
	assert.Equal(t, int64(5), *scenario.Events[1].ID)

	events, err := scenario.BuildEvents()
	require.NoError(t, err)
	assert.Equal(t, ir.EventID(0), events[0].ID)
	assert.Equal(t, ir.EventID(5), events[1].ID)
	assert.Equal(t, ir.Int(100), events[0].Fields["packet_obj_id"])
	assert.Equal(t, ir.String("pkt-1"), events[1].Fields["packet"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "misspelled key"
schema: builtin:sts
events:
  - type: X
assertion:
  - type: edge_count
`)

	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoadScenario_ResolvesPathsAgainstFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t.jsonl"), []byte(`{"id":0,"type":"X"}`+"\n"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: file_trace
description: "trace file next to the scenario"
schema: schema.cue
trace: t.jsonl
assertions:
  - type: edge_count
    count: 0
`), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "schema.cue"), scenario.Schema)
	assert.Equal(t, filepath.Join(dir, "t.jsonl"), scenario.Trace)
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Schema:      "builtin:sts",
			Events:      []EventStep{{Type: "X"}},
			Assertions:  []Assertion{{Type: AssertEdgeCount}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"missing schema", func(s *Scenario) { s.Schema = "" }, "schema is required"},
		{"no events", func(s *Scenario) { s.Events = nil }, "events list is required"},
		{"trace and events", func(s *Scenario) { s.Trace = "x.jsonl" }, "mutually exclusive"},
		{"event without type", func(s *Scenario) { s.Events = []EventStep{{}} }, "events[0]: type is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"assertion without type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "bogus"}} }, "unknown assertion type"},
		{"backward edge", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertEdge, From: 3, To: 2}} }, "from < to"},
		{"no_edge with rule", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertNoEdge, From: 1, To: 2, Rule: "transfer"}}
		}, "does not take a rule"},
		{"retired without events", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertRetired}} }, "retired requires events"},
		{"same_tag with one event", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertSameTag, Events: []int64{1}}}
		}, "at least two events"},
		{"error without code", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertError}} }, "error requires code"},
		{"error with unknown code", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertError, Code: "OOPS"}}
		}, "unknown error code"},
		{"error mixed with others", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertError, Code: "UNKNOWN_KIND"}, {Type: AssertEdgeCount}}
		}, "only assertion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBuildEvents_RejectsFloats(t *testing.T) {
	s := &Scenario{Events: []EventStep{{Type: "X", Fields: map[string]any{"f": 1.5}}}}
	_, err := s.BuildEvents()
	assert.ErrorContains(t, err, "events[0].f")
}
