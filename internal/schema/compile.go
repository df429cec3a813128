package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/happensbefore/internal/ir"
)

// Compile parses a CUE schema value into an ir.Schema.
// Uses the CUE SDK's Go API directly.
//
// The value is the schema root, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	s, err := Compile("sts", v)
//
// Compile does not check cross references; see Validate.
func Compile(name string, v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &ir.Schema{Name: name, Kinds: make(map[string]*ir.KindSpec)}
	if n, ok, err := optString(v, "name"); err != nil {
		return nil, err
	} else if ok {
		s.Name = n
	}

	var err error
	if s.Fields, err = parseFields(v.LookupPath(cue.ParsePath("fields"))); err != nil {
		return nil, err
	}

	if tv := v.LookupPath(cue.ParsePath("topology")); tv.Exists() {
		if s.Topology, err = parseTopology(tv); err != nil {
			return nil, err
		}
	}
	if bv := v.LookupPath(cue.ParsePath("barrier")); bv.Exists() {
		if s.Barrier, err = parseBarrier(bv); err != nil {
			return nil, err
		}
	}
	if cv := v.LookupPath(cue.ParsePath("correlation")); cv.Exists() {
		if s.Correlation, err = parseCorrelation(cv); err != nil {
			return nil, err
		}
	}

	kindsVal := v.LookupPath(cue.ParsePath("kinds"))
	if !kindsVal.Exists() {
		return nil, &CompileError{Field: "kinds", Message: "kinds is required", Pos: v.Pos()}
	}
	iter, err := kindsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		k, err := parseKind(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.Kinds[k.Name] = k
	}
	if len(s.Kinds) == 0 {
		return nil, &CompileError{Field: "kinds", Message: "at least one kind is required", Pos: kindsVal.Pos()}
	}

	return s, nil
}

func parseFields(v cue.Value) (ir.FieldMap, error) {
	var fm ir.FieldMap
	if !v.Exists() {
		return fm, nil
	}
	targets := []struct {
		label string
		dst   *string
	}{
		{"location", &fm.Location},
		{"channel", &fm.Channel},
		{"message", &fm.Message},
		{"message_kind", &fm.MessageKind},
		{"buffer", &fm.Buffer},
		{"back_reference", &fm.BackReference},
		{"object", &fm.Object},
		{"object_reference", &fm.ObjectReference},
	}
	for _, t := range targets {
		s, _, err := optString(v, t.label)
		if err != nil {
			return fm, err
		}
		*t.dst = s
	}
	return fm, nil
}

func parseTopology(v cue.Value) (*ir.Topology, error) {
	t := &ir.Topology{}
	var err error
	if t.Payload, _, err = optString(v, "payload"); err != nil {
		return nil, err
	}
	if t.Connected, _, err = optString(v, "connected"); err != nil {
		return nil, err
	}
	if t.Self, err = optStrings(v, "self"); err != nil {
		return nil, err
	}
	if t.Peer, err = optStrings(v, "peer"); err != nil {
		return nil, err
	}
	if len(t.Self) != len(t.Peer) {
		return nil, &CompileError{
			Field:   "topology",
			Message: fmt.Sprintf("self has %d fields but peer has %d", len(t.Self), len(t.Peer)),
			Pos:     v.Pos(),
		}
	}
	return t, nil
}

func parseBarrier(v cue.Value) (*ir.BarrierSpec, error) {
	b := &ir.BarrierSpec{Match: ir.MatchUnique}
	var err error
	if b.Members, err = optStrings(v, "members"); err != nil {
		return nil, err
	}
	if b.Channel, err = optStrings(v, "channel"); err != nil {
		return nil, err
	}
	if b.Request, err = parseSelector(v, "request"); err != nil {
		return nil, err
	}
	if b.Reply, err = parseSelector(v, "reply"); err != nil {
		return nil, err
	}
	if m, ok, err := optString(v, "match"); err != nil {
		return nil, err
	} else if ok {
		b.Match = ir.BarrierMatch(m)
	}
	if b.Correlate, _, err = optString(v, "correlate"); err != nil {
		return nil, err
	}
	return b, nil
}

func parseSelector(parent cue.Value, label string) (ir.Selector, error) {
	var sel ir.Selector
	v := parent.LookupPath(cue.ParsePath(label))
	if !v.Exists() {
		return sel, &CompileError{Field: "barrier." + label, Message: label + " is required", Pos: parent.Pos()}
	}
	kind, ok, err := optString(v, "kind")
	if err != nil {
		return sel, err
	}
	if !ok {
		return sel, &CompileError{Field: "barrier." + label + ".kind", Message: "kind is required", Pos: v.Pos()}
	}
	sel.Kind = kind
	if sel.When, err = parseGuard(v); err != nil {
		return sel, err
	}
	return sel, nil
}

func parseCorrelation(v cue.Value) (*ir.CorrelationSpec, error) {
	c := &ir.CorrelationSpec{}
	strs := []struct {
		label string
		dst   *string
	}{
		{"kind", &c.Kind},
		{"discriminator", &c.Discriminator},
		{"origin", &c.Origin},
	}
	for _, s := range strs {
		val, ok, err := optString(v, s.label)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: "correlation." + s.label, Message: s.label + " is required", Pos: v.Pos()}
		}
		*s.dst = val
	}
	lists := []struct {
		label string
		dst   *[]string
	}{
		{"outbound_key", &c.OutboundKey},
		{"outbound_match", &c.OutboundMatch},
		{"outbound_link", &c.OutboundLink},
		{"inbound_key", &c.InboundKey},
	}
	for _, l := range lists {
		val, err := optStrings(v, l.label)
		if err != nil {
			return nil, err
		}
		*l.dst = val
	}
	return c, nil
}

func parseKind(name string, v cue.Value) (*ir.KindSpec, error) {
	k := &ir.KindSpec{Name: name, Role: ir.RoleOrdinary}
	field := func(f string) string { return "kinds." + name + "." + f }

	if role, ok, err := optString(v, "role"); err != nil {
		return nil, err
	} else if ok {
		k.Role = ir.Role(role)
	}
	var err error
	if k.Trackable, err = optBool(v, "trackable"); err != nil {
		return nil, err
	}
	if k.Mandatory, err = optBool(v, "mandatory"); err != nil {
		return nil, err
	}
	if k.Predecessors, err = optStrings(v, "predecessors"); err != nil {
		return nil, err
	}

	if rv := v.LookupPath(cue.ParsePath("rules")); rv.Exists() {
		iter, err := rv.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			r, err := parseRule(iter.Value())
			if err != nil {
				return nil, err
			}
			k.Rules = append(k.Rules, r)
		}
	}

	k.Index.Mode = ir.IndexNone
	if k.Role == ir.RoleOrdinary {
		k.Index.Mode = ir.IndexInsert
	}
	if iv := v.LookupPath(cue.ParsePath("index")); iv.Exists() {
		mode, ok, err := optString(iv, "mode")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: field("index.mode"), Message: "mode is required", Pos: iv.Pos()}
		}
		k.Index.Mode = ir.IndexMode(mode)
		if k.Index.Equivalence, err = optStrings(iv, "equivalence"); err != nil {
			return nil, err
		}
		if k.Index.When, err = parseGuard(iv); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func parseRule(v cue.Value) (ir.RuleSpec, error) {
	var r ir.RuleSpec
	name, ok, err := optString(v, "rule")
	if err != nil {
		return r, err
	}
	if !ok {
		return r, &CompileError{Field: "rule", Message: "rule is required", Pos: v.Pos()}
	}
	r.Rule = ir.RuleKind(name)
	key, _, err := optString(v, "key")
	if err != nil {
		return r, err
	}
	r.Key = ir.ActorKey(key)
	if r.From, err = optStrings(v, "from"); err != nil {
		return r, err
	}
	if r.Candidates, err = optStrings(v, "candidates"); err != nil {
		return r, err
	}
	if r.When, err = parseGuard(v); err != nil {
		return r, err
	}
	return r, nil
}

// parseGuard reads an optional `when: {field, values}` below v.
func parseGuard(v cue.Value) (*ir.Guard, error) {
	gv := v.LookupPath(cue.ParsePath("when"))
	if !gv.Exists() {
		return nil, nil
	}
	f, ok, err := optString(gv, "field")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{Field: "when.field", Message: "field is required", Pos: gv.Pos()}
	}
	values, err := optStrings(gv, "values")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, &CompileError{Field: "when.values", Message: "at least one value is required", Pos: gv.Pos()}
	}
	return &ir.Guard{Field: f, Values: values}, nil
}

func optString(v cue.Value, label string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(label))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optBool(v cue.Value, label string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(label))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optStrings(v cue.Value, label string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(label))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError is a schema error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
