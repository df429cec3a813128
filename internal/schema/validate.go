package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrUnknownKind       = "E201" // reference to an undeclared kind
	ErrInvalidRole       = "E202" // role outside the closed set
	ErrInvalidRule       = "E203" // rule outside the closed set
	ErrInvalidActorKey   = "E204" // same_actor key invalid or its field unmapped
	ErrMissingField      = "E205" // rule or role needs an unmapped field
	ErrMissingSection    = "E206" // rule needs barrier/correlation/topology section
	ErrInvalidIndex      = "E207" // index policy invalid for the kind
	ErrCandidatesOutside = "E208" // rule narrows to kinds outside the compatibility row
	ErrRulesOnBookkeeper = "E209" // rules declared on a non-ordinary kind
	ErrInvalidBarrier    = "E210" // barrier section invalid
	ErrInvalidCorrelate  = "E211" // correlation section invalid
)

// ValidationError is a single schema validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors collects every failure found in one schema.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks cross references and rule/role combinations.
// Returns all errors found (does not fail fast).
func Validate(s *ir.Schema) ValidationErrors {
	v := &validator{s: s}
	for _, name := range s.KindNames() {
		v.kind(s.Kinds[name])
	}
	if s.Barrier != nil {
		v.barrier(s.Barrier)
	}
	if s.Correlation != nil {
		v.correlation(s.Correlation)
	}
	return v.errs
}

type validator struct {
	s    *ir.Schema
	errs ValidationErrors
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) known(field string, kinds ...string) {
	for _, k := range kinds {
		if _, ok := v.s.Kinds[k]; !ok {
			v.add(field, ErrUnknownKind, "unknown kind %q", k)
		}
	}
}

func (v *validator) needField(field, mapped, label string) {
	if mapped == "" {
		v.add(field, ErrMissingField, "fields.%s must be set", label)
	}
}

func (v *validator) kind(k *ir.KindSpec) {
	base := "kinds." + k.Name
	v.known(base+".predecessors", k.Predecessors...)

	switch k.Role {
	case ir.RoleOrdinary, ir.RoleIgnored, ir.RoleCorrelation:
	case ir.RoleRegister, ir.RoleDeregister:
		v.needField(base+".role", v.s.Fields.Object, "object")
	default:
		v.add(base+".role", ErrInvalidRole, "invalid role %q", k.Role)
	}

	if k.Trackable {
		v.needField(base+".trackable", v.s.Fields.ObjectReference, "object_reference")
	}

	if k.Role != ir.RoleOrdinary {
		if len(k.Rules) > 0 {
			v.add(base+".rules", ErrRulesOnBookkeeper, "%s kinds cannot declare rules", k.Role)
		}
		if k.Index.Mode != ir.IndexNone {
			v.add(base+".index", ErrInvalidIndex, "%s kinds are never indexed", k.Role)
		}
		if k.Mandatory {
			v.add(base+".mandatory", ErrRulesOnBookkeeper, "%s kinds cannot be mandatory", k.Role)
		}
		return
	}

	if k.Mandatory && len(k.Rules) == 0 {
		v.add(base+".mandatory", ErrInvalidRule, "mandatory kind has no rules")
	}

	for i, r := range k.Rules {
		v.rule(fmt.Sprintf("%s.rules[%d]", base, i), k, r)
	}

	switch k.Index.Mode {
	case ir.IndexInsert, ir.IndexNone:
		if len(k.Index.Equivalence) > 0 {
			v.add(base+".index.equivalence", ErrInvalidIndex, "equivalence only applies to replace")
		}
	case ir.IndexReplace:
		if len(k.Index.Equivalence) == 0 {
			v.add(base+".index.equivalence", ErrInvalidIndex, "replace requires equivalence fields")
		}
	default:
		v.add(base+".index.mode", ErrInvalidIndex, "invalid index mode %q", k.Index.Mode)
	}
}

func (v *validator) rule(field string, k *ir.KindSpec, r ir.RuleSpec) {
	v.known(field+".candidates", r.Candidates...)
	for _, c := range r.Candidates {
		if !slices.Contains(k.Predecessors, c) {
			v.add(field+".candidates", ErrCandidatesOutside, "%q is not in the compatibility row of %s", c, k.Name)
		}
	}

	fm := v.s.Fields
	switch r.Rule {
	case ir.RuleBackReference:
		v.needField(field, fm.BackReference, "back_reference")
	case ir.RuleSameActor:
		v.needField(field, fm.Location, "location")
		switch r.Key {
		case ir.KeyTag:
			if !k.Trackable {
				v.add(field+".key", ErrInvalidActorKey, "tag key on a kind that is not trackable")
			}
		case ir.KeyMessage:
			v.needField(field+".key", fm.Message, "message")
		case ir.KeyBuffer:
			v.needField(field+".key", fm.Buffer, "buffer")
		default:
			v.add(field+".key", ErrInvalidActorKey, "invalid same_actor key %q", r.Key)
		}
	case ir.RuleTransfer:
		if len(r.From) == 0 {
			v.add(field+".from", ErrInvalidRule, "transfer requires departure kinds")
		}
		if !k.Trackable {
			v.add(field, ErrInvalidRule, "transfer on a kind that is not trackable")
		}
		v.known(field+".from", r.From...)
		for _, from := range r.From {
			if !slices.Contains(k.Predecessors, from) {
				v.add(field+".from", ErrCandidatesOutside, "%q is not in the compatibility row of %s", from, k.Name)
			}
		}
	case ir.RuleProxy:
		if v.s.Correlation == nil {
			v.add(field, ErrMissingSection, "proxy requires a correlation section")
		}
	case ir.RuleBarrierJoin, ir.RulePersistent:
		if v.s.Barrier == nil {
			v.add(field, ErrMissingSection, "%s requires a barrier section", r.Rule)
		}
	default:
		v.add(field+".rule", ErrInvalidRule, "invalid rule %q", r.Rule)
	}
}

func (v *validator) barrier(b *ir.BarrierSpec) {
	v.known("barrier.members", b.Members...)
	v.known("barrier.request.kind", b.Request.Kind)
	v.known("barrier.reply.kind", b.Reply.Kind)
	if len(b.Channel) == 0 {
		v.add("barrier.channel", ErrInvalidBarrier, "at least one channel field is required")
	}
	switch b.Match {
	case ir.MatchUnique, ir.MatchFIFO:
	default:
		v.add("barrier.match", ErrInvalidBarrier, "invalid match %q", b.Match)
	}
	if b.Request.Kind == b.Reply.Kind && b.Request.When == nil && b.Reply.When == nil {
		v.add("barrier.reply", ErrInvalidBarrier, "request and reply selectors cannot both select every %s", b.Reply.Kind)
	}
	for _, sel := range []ir.Selector{b.Request, b.Reply} {
		if k, ok := v.s.Kinds[sel.Kind]; ok && k.Role != ir.RoleOrdinary {
			v.add("barrier", ErrInvalidBarrier, "%s must be an ordinary kind", sel.Kind)
		}
	}
}

func (v *validator) correlation(c *ir.CorrelationSpec) {
	v.known("correlation.kind", c.Kind)
	v.known("correlation.origin", c.Origin)
	if k, ok := v.s.Kinds[c.Kind]; ok && k.Role != ir.RoleCorrelation {
		v.add("correlation.kind", ErrInvalidCorrelate, "%s must have role correlation", c.Kind)
	}
	if len(c.OutboundKey) == 0 || len(c.OutboundKey) != len(c.OutboundMatch) {
		v.add("correlation.outbound_match", ErrInvalidCorrelate, "outbound_key and outbound_match must be non-empty and the same length")
	}
	if len(c.InboundKey) == 0 || len(c.InboundKey) != len(c.OutboundLink) {
		v.add("correlation.outbound_link", ErrInvalidCorrelate, "inbound_key and outbound_link must be non-empty and the same length")
	}
	fm := v.s.Fields
	if fm.Location == "" || fm.Channel == "" || fm.Message == "" {
		v.add("correlation", ErrMissingField, "fields.location, fields.channel and fields.message must be set")
	}
}
