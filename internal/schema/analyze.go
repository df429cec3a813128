package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// Finding is an advisory result of static schema analysis.
//
// Findings never make a schema invalid: loops in the compatibility table
// are normal (a packet can cross several switches) and an inert kind may
// simply be informational.
type Finding struct {
	Level   string   `json:"level"` // "warning" or "info"
	Kinds   []string `json:"kinds"`
	Message string   `json:"message"`
}

// Analyze reports compatibility loops, indexed kinds no rule can ever
// select, and kinds whose rules can never match.
//
// Loops are strongly connected components of the predecessor -> successor
// graph (Tarjan). Findings are sorted so output is stable.
func Analyze(s *ir.Schema) []Finding {
	findings := []Finding{}
	graph := compatibilityGraph(s)

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			slices.Sort(scc)
			findings = append(findings, Finding{
				Level:   "info",
				Kinds:   scc,
				Message: fmt.Sprintf("compatibility loop: %s", strings.Join(scc, " → ")),
			})
		}
	}

	selectable := make(map[string]bool)
	for _, name := range s.KindNames() {
		k := s.Kinds[name]
		if k.Role != ir.RoleOrdinary || len(k.Rules) == 0 {
			continue
		}
		for _, p := range k.Predecessors {
			selectable[p] = true
		}
	}

	for _, name := range s.KindNames() {
		k := s.Kinds[name]
		if k.Role != ir.RoleOrdinary {
			continue
		}
		if k.Index.Mode != ir.IndexNone && !selectable[name] {
			findings = append(findings, Finding{
				Level:   "warning",
				Kinds:   []string{name},
				Message: fmt.Sprintf("%s is indexed but no rule can select it", name),
			})
		}
		if len(k.Rules) > 0 && len(k.Predecessors) == 0 {
			findings = append(findings, Finding{
				Level:   "warning",
				Kinds:   []string{name},
				Message: fmt.Sprintf("%s declares rules but has an empty compatibility row", name),
			})
		}
	}

	slices.SortStableFunc(findings, func(a, b Finding) int {
		if a.Level != b.Level {
			return strings.Compare(b.Level, a.Level) // warnings first
		}
		return slices.Compare(a.Kinds, b.Kinds)
	})
	return findings
}

// dependencyGraph maps kind -> kinds it may directly precede.
type dependencyGraph map[string][]string

func compatibilityGraph(s *ir.Schema) dependencyGraph {
	graph := make(dependencyGraph)
	for _, name := range s.KindNames() {
		if _, ok := graph[name]; !ok {
			graph[name] = nil
		}
		for _, p := range s.Kinds[name].Predecessors {
			graph[p] = append(graph[p], name)
		}
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}
