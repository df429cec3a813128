package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
)

// WriteDOT writes g in Graphviz DOT syntax.
func WriteDOT(w io.Writer, g *engine.Graph, opts Options) error {
	name := opts.Name
	if name == "" {
		name = g.SchemaName()
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", quoteDOT(name))
	fmt.Fprintf(bw, "\tnode [shape=box];\n")

	for _, ev := range g.Nodes() {
		fmt.Fprintf(bw, "\t%d [label=%s];\n", ev.ID, quoteDOT(nodeLabel(ev, opts.LabelFields)))
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "\t%d -> %d [label=%s];\n", e.From, e.To, quoteDOT(string(e.Rule)))
	}

	fmt.Fprintf(bw, "}\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write dot: %w", err)
	}
	return nil
}

// nodeLabel renders "id: Kind" followed by the present label fields.
// quoteDOT turns the line breaks into DOT \n escapes.
func nodeLabel(ev *ir.Event, fields []string) string {
	lines := []string{fmt.Sprintf("%d: %s", ev.ID, ev.Kind)}
	for _, f := range fields {
		if v, ok := ev.Field(f); ok {
			lines = append(lines, ir.Text(v))
		}
	}
	return strings.Join(lines, "\n")
}

// quoteDOT returns s as a DOT double-quoted string.
func quoteDOT(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
