package export

import (
	"fmt"
	"io"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
)

// Document builds the JSON form of g as an IR value.
//
//	{"schema": ..., "digest": ..., "nodes": [...], "edges": [...], "candidates": [...]}
//
// Each node carries its id, kind, fields and, when it has one, its tag.
func Document(g *engine.Graph) (ir.Object, error) {
	digest, err := g.Digest()
	if err != nil {
		return nil, fmt.Errorf("graph digest: %w", err)
	}

	nodes := ir.Array{}
	for _, ev := range g.Nodes() {
		node := ir.Object{
			"id":   ir.Int(ev.ID),
			"kind": ir.String(ev.Kind),
		}
		if ev.Fields != nil {
			node["fields"] = ev.Fields
		} else {
			node["fields"] = ir.Object{}
		}
		if tag, ok := g.Tag(ev.ID); ok {
			node["tag"] = ir.Int(tag)
		}
		nodes = append(nodes, node)
	}

	edges := ir.Array{}
	for _, e := range g.Edges() {
		edges = append(edges, ir.Object{
			"from": ir.Int(e.From),
			"to":   ir.Int(e.To),
			"rule": ir.String(e.Rule),
		})
	}

	candidates := ir.Array{}
	for _, id := range g.Candidates() {
		candidates = append(candidates, ir.Int(id))
	}

	return ir.Object{
		"schema":     ir.String(g.SchemaName()),
		"digest":     ir.String(digest),
		"nodes":      nodes,
		"edges":      edges,
		"candidates": candidates,
	}, nil
}

// WriteJSON writes g as one line of canonical JSON.
func WriteJSON(w io.Writer, g *engine.Graph) error {
	doc, err := Document(g)
	if err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// Format names an export format.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// Write renders g in the given format.
func Write(w io.Writer, g *engine.Graph, format Format, opts Options) error {
	switch format {
	case FormatDOT, "":
		return WriteDOT(w, g, opts)
	case FormatJSON:
		return WriteJSON(w, g)
	default:
		return fmt.Errorf("unknown export format %q (want dot or json)", format)
	}
}
