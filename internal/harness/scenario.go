package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/schema"
)

// Scenario defines a conformance test scenario.
// A scenario feeds a small trace to the analyzer and asserts on the
// resulting graph, or on the error the analysis fails with.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a schema reference: "builtin:sts", a .cue file or a
	// directory. Relative paths resolve against the scenario's base path.
	Schema string `yaml:"schema"`

	// Trace is an optional JSONL trace file used instead of Events.
	Trace string `yaml:"trace,omitempty"`

	// Events is the inline trace. Ids default to the event's position.
	Events []EventStep `yaml:"events,omitempty"`

	// Assertions validate the graph or the failure.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one inline trace event.
type EventStep struct {
	// ID overrides the positional id.
	ID *int64 `yaml:"id,omitempty"`

	// Type is the event kind.
	Type string `yaml:"type"`

	// Fields holds the event's attributes. Floats are rejected.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Assertion validates the graph or the run error.
type Assertion struct {
	// Type specifies the assertion type:
	// - "edge": From -> To exists, produced by Rule when given
	// - "no_edge": From -> To does not exist
	// - "edge_count": the graph has exactly Count edges
	// - "predecessors": Event's immediate predecessors are exactly Events
	// - "candidates": the final candidate set is exactly Events
	// - "retired": none of Events is left in the candidate set
	// - "same_tag": all of Events carry the same identity tag
	// - "error": the analysis fails with Code
	Type string `yaml:"type"`

	From   int64   `yaml:"from,omitempty"`
	To     int64   `yaml:"to,omitempty"`
	Rule   string  `yaml:"rule,omitempty"`
	Count  int     `yaml:"count,omitempty"`
	Event  int64   `yaml:"event,omitempty"`
	Events []int64 `yaml:"events,omitempty"`
	Code   string  `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertEdge         = "edge"
	AssertNoEdge       = "no_edge"
	AssertEdgeCount    = "edge_count"
	AssertPredecessors = "predecessors"
	AssertCandidates   = "candidates"
	AssertRetired      = "retired"
	AssertSameTag      = "same_tag"
	AssertError        = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Relative schema and trace paths resolve against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema and trace paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to base path BEFORE validation
	scenario.Schema = resolvePath(scenario.Schema, basePath)
	scenario.Trace = resolvePath(scenario.Trace, basePath)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolvePath(p, basePath string) string {
	if p == "" || basePath == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "builtin:") {
		return p
	}
	return filepath.Join(basePath, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema is required (use %q for the built-in schema)", schema.BuiltinSTS)
	}

	if s.Trace != "" && len(s.Events) > 0 {
		return fmt.Errorf("trace and events are mutually exclusive")
	}

	if s.Trace == "" && len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty (or set trace)")
	}

	if s.Trace != "" {
		if _, err := os.Stat(s.Trace); os.IsNotExist(err) {
			return fmt.Errorf("trace file not found: %s", s.Trace)
		}
	}

	for i, step := range s.Events {
		if step.Type == "" {
			return fmt.Errorf("events[%d]: type is required", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	expectsError := false
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
		if assertion.Type == AssertError {
			expectsError = true
		}
	}
	if expectsError && len(s.Assertions) > 1 {
		return fmt.Errorf("an error assertion must be the only assertion")
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEdge, AssertNoEdge:
		if a.From >= a.To {
			return fmt.Errorf("assertions[%d]: %s requires from < to, got %d -> %d", index, a.Type, a.From, a.To)
		}
		if a.Type == AssertNoEdge && a.Rule != "" {
			return fmt.Errorf("assertions[%d]: no_edge does not take a rule", index)
		}
	case AssertEdgeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: edge_count requires count >= 0", index)
		}
	case AssertPredecessors, AssertCandidates:
		// An empty events list asserts "none".
	case AssertRetired:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: retired requires events", index)
		}
	case AssertSameTag:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: same_tag requires at least two events", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: error requires code", index)
		}
		if !engine.KnownCode(engine.ErrorCode(a.Code)) {
			return fmt.Errorf("assertions[%d]: unknown error code %q", index, a.Code)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// BuildEvents converts the inline events to trace events.
func (s *Scenario) BuildEvents() ([]ir.Event, error) {
	events := make([]ir.Event, 0, len(s.Events))
	for i, step := range s.Events {
		id := int64(i)
		if step.ID != nil {
			id = *step.ID
		}
		fields := make(ir.Object, len(step.Fields))
		for name, raw := range step.Fields {
			v, err := ir.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("events[%d].%s: %w", i, name, err)
			}
			fields[name] = v
		}
		events = append(events, ir.Event{ID: ir.EventID(id), Kind: step.Type, Fields: fields})
	}
	return events, nil
}
