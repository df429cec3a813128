package engine

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// run is the mutable state of one analysis. It lives for exactly one call
// to Analyzer.Run and is never shared.
type run struct {
	schema     *ir.Schema
	logger     *slog.Logger
	byID       map[ir.EventID]*ir.Event
	registry   *Registry
	index      *Index
	acc        *Accumulator
	correlator *Correlator
	tagOf      map[ir.EventID]Tag
	graph      *Graph

	// onEdge observes every new edge.
	onEdge func(ir.Edge)
}

func newRun(schema *ir.Schema, logger *slog.Logger, events []*ir.Event, byID map[ir.EventID]*ir.Event) *run {
	r := &run{
		schema:   schema,
		logger:   logger,
		byID:     byID,
		registry: NewRegistry(),
		index:    NewIndex(schema.Fields),
		acc:      NewAccumulator(),
		tagOf:    make(map[ir.EventID]Tag),
		graph:    newGraph(schema, events, byID),
		onEdge:   func(ir.Edge) {},
	}
	if schema.Correlation != nil {
		r.correlator = NewCorrelator(schema.Correlation, schema.Fields)
	}
	return r
}

// finish copies the end-of-run state into the graph.
func (r *run) finish() *Graph {
	r.graph.candidates = r.index.IDs()
	for id, tag := range r.tagOf {
		r.graph.tags[id] = tag
	}
	return r.graph
}

// dispatch routes one event by the role of its kind.
func (r *run) dispatch(ev *ir.Event) error {
	kind, ok := r.schema.Kind(ev.Kind)
	if !ok {
		return newError(ErrCodeUnknownKind, ev, "kind %q is not in schema %q", ev.Kind, r.schema.Name)
	}

	switch kind.Role {
	case ir.RoleRegister:
		return r.register(ev)
	case ir.RoleDeregister:
		return r.deregister(ev)
	case ir.RoleCorrelation:
		return r.correlate(ev)
	case ir.RoleIgnored:
		return nil
	case ir.RoleOrdinary:
		return r.ordinary(ev, kind)
	default:
		return newError(ErrCodeUnknownKind, ev, "kind %q has unknown role %q", ev.Kind, kind.Role)
	}
}

// referenced resolves an event-id field of ev. ok is false when the field
// is absent.
func (r *run) referenced(ev *ir.Event, field string) (target *ir.Event, ok bool, err error) {
	if field == "" {
		return nil, false, nil
	}
	raw, present := ev.Field(field)
	if !present {
		return nil, false, nil
	}
	n, isInt := raw.(ir.Int)
	if !isInt {
		return nil, false, newError(ErrCodeInvalidTrace, ev, "field %q must be an event id, got %s", field, ir.Text(raw))
	}
	id := ir.EventID(n)
	if id >= ev.ID {
		return nil, false, newError(ErrCodeInvalidTrace, ev, "field %q refers forward to event %d", field, id)
	}
	target, found := r.byID[id]
	if !found {
		return nil, false, newError(ErrCodeDanglingReference, ev, "field %q refers to unknown event %d", field, id)
	}
	return target, true, nil
}

func (r *run) objectOf(ev *ir.Event) (ObjectKey, bool) {
	v, ok := ev.Field(r.schema.Fields.Object)
	if !ok {
		return "", false
	}
	return ObjectKey(component(v)), true
}

// register binds the event's object to a tag. A reference to an earlier
// registration makes the object a copy of that one.
func (r *run) register(ev *ir.Event) error {
	obj, ok := r.objectOf(ev)
	if !ok {
		return newError(ErrCodeInvalidTrace, ev, "registration without field %q", r.schema.Fields.Object)
	}

	var existing Tag
	ref, hasRef, err := r.referenced(ev, r.schema.Fields.ObjectReference)
	if err != nil {
		return err
	}
	if hasRef {
		t, tagged := r.tagOf[ref.ID]
		if !tagged {
			return newError(ErrCodeIdentityViolation, ev, "referenced event %d carries no tag", ref.ID)
		}
		existing = t
	}

	tag, err := r.registry.Register(obj, existing)
	if err != nil {
		return newError(ErrCodeIdentityViolation, ev, "%v", err)
	}
	r.tagOf[ev.ID] = tag
	r.logger.Debug("registered object", "event", ev.ID, "tag", tag)
	return nil
}

// deregister releases one reference to the event's object. The object may
// be named directly or through a reference to an earlier event.
func (r *run) deregister(ev *ir.Event) error {
	obj, hasObj := r.objectOf(ev)
	ref, hasRef, err := r.referenced(ev, r.schema.Fields.ObjectReference)
	if err != nil {
		return err
	}
	if hasRef {
		refObj, ok := r.objectOf(ref)
		if !ok {
			return newError(ErrCodeIdentityViolation, ev, "referenced event %d names no object", ref.ID)
		}
		if hasObj && refObj != obj {
			return newError(ErrCodeIdentityViolation, ev, "object differs from referenced event %d", ref.ID)
		}
		obj, hasObj = refObj, true
	}
	if !hasObj {
		return newError(ErrCodeInvalidTrace, ev, "deregistration names no object")
	}

	if err := r.registry.Deregister(obj); err != nil {
		return newError(ErrCodeIdentityViolation, ev, "%v", err)
	}
	return nil
}

// correlate stores a proxy record.
func (r *run) correlate(ev *ir.Event) error {
	if r.correlator == nil {
		return nil
	}
	if err := r.correlator.Record(ev); err != nil {
		return newError(ErrCodeInvalidTrace, ev, "%v", err)
	}
	return nil
}

// channelOf renders the barrier channel of ev.
func (r *run) channelOf(ev *ir.Event) (ChannelKey, bool) {
	if r.schema.Barrier == nil {
		return "", false
	}
	key, ok := tuple(ev, r.schema.Barrier.Channel)
	return ChannelKey(key), ok
}

// ordinary runs the full pipeline for a matchable event:
// tag propagation, barrier bookkeeping, rules, the mandatory check, the
// latest-reply slot and finally the index policy.
func (r *run) ordinary(ev *ir.Event, kind *ir.KindSpec) error {
	if kind.Trackable {
		if err := r.propagateTag(ev); err != nil {
			return err
		}
	}

	bucket, err := r.barrier(ev)
	if err != nil {
		return err
	}

	matched := false
	for _, rule := range kind.Rules {
		if !rule.When.Holds(ev) {
			continue
		}
		preds, err := r.applyRule(ev, kind, rule, bucket)
		if err != nil {
			return err
		}
		if len(preds) == 0 {
			continue
		}
		for _, p := range preds {
			if err := r.link(p, ev, rule.Rule); err != nil {
				return err
			}
		}
		matched = true
		break
	}

	if kind.Mandatory && !matched {
		return newError(ErrCodeMissingPredecessor, ev, "no rule found a predecessor")
	}

	if r.schema.Barrier != nil && r.schema.Barrier.Reply.Matches(ev) {
		if ch, ok := r.channelOf(ev); ok {
			r.acc.SetLatest(ch, ev.ID)
		}
	}

	return r.applyIndexPolicy(ev, kind)
}

// propagateTag copies the tag of the referenced event onto ev.
func (r *run) propagateTag(ev *ir.Event) error {
	ref, ok, err := r.referenced(ev, r.schema.Fields.ObjectReference)
	if err != nil || !ok {
		return err
	}
	tag, tagged := r.tagOf[ref.ID]
	if !tagged {
		return newError(ErrCodeIdentityViolation, ev, "referenced event %d carries no tag", ref.ID)
	}
	if !r.registry.Live(tag) {
		return newError(ErrCodeIdentityViolation, ev, "tag %d of event %d is not live", tag, ref.ID)
	}
	r.tagOf[ev.ID] = tag
	return nil
}

// barrier updates the accumulator for ev. For a sync reply it returns the
// bucket flushed by the paired request; the bucket is consumed here so a
// reply consumes at most one bucket whatever its rules do.
func (r *run) barrier(ev *ir.Event) ([]ir.EventID, error) {
	spec := r.schema.Barrier
	if spec == nil {
		return nil, nil
	}
	ch, ok := r.channelOf(ev)
	if !ok {
		return nil, nil
	}

	switch {
	case spec.Request.Matches(ev):
		flushed := r.acc.OnSyncRequest(ch, ev.ID)
		r.logger.Debug("flushed sync bucket", "request", ev.ID, "size", len(flushed))
		return nil, nil
	case spec.Reply.Matches(ev):
		req, found, err := r.pairRequest(ev, ch)
		if err != nil || !found {
			return nil, err
		}
		bucket, err := r.acc.OnSyncReply(ch, req)
		if err != nil {
			e := newError(ErrCodeDuplicateConsumption, ev, "%v", err)
			e.Rule = ir.RuleBarrierJoin
			return nil, e
		}
		return bucket, nil
	case r.schema.IsBarrierMember(ev.Kind):
		r.acc.OnOrdinaryEvent(ch, ev.ID)
	}
	return nil, nil
}

// pairRequest picks the outstanding request a reply answers. With nothing
// outstanding the reply is paired with an already answered request (the
// correlated one, or the most recent) so that consuming it again fails.
// found is false only when the channel never saw a matching request.
func (r *run) pairRequest(reply *ir.Event, ch ChannelKey) (ir.EventID, bool, error) {
	spec := r.schema.Barrier

	var want ir.Value
	if spec.Correlate != "" {
		v, ok := reply.Field(spec.Correlate)
		if !ok {
			return 0, false, nil
		}
		want = v
	}
	correlated := func(ids []ir.EventID) []ir.EventID {
		if spec.Correlate == "" {
			return ids
		}
		var kept []ir.EventID
		for _, id := range ids {
			if got, ok := r.byID[id].Field(spec.Correlate); ok && component(got) == component(want) {
				kept = append(kept, id)
			}
		}
		return kept
	}

	outstanding := correlated(r.acc.Outstanding(ch))
	switch {
	case len(outstanding) == 1 || (len(outstanding) > 1 && spec.Match == ir.MatchFIFO):
		return outstanding[0], true, nil
	case len(outstanding) > 1:
		cands := make([]*ir.Event, len(outstanding))
		for i, id := range outstanding {
			cands[i] = r.byID[id]
		}
		return 0, false, ambiguousError(reply, ir.RuleBarrierJoin, cands)
	}

	answered := correlated(r.acc.Answered(ch))
	if len(answered) == 0 {
		return 0, false, nil
	}
	return answered[len(answered)-1], true, nil
}

// link adds before -> after after checking the compatibility table.
func (r *run) link(before, after *ir.Event, rule ir.RuleKind) error {
	if !r.schema.Allows(after.Kind, before.Kind) {
		e := newError(ErrCodeIncompatibleEdge, after, "%s may not follow %s", after.Kind, before.Kind)
		e.Rule = rule
		return e
	}
	added, err := r.graph.addEdge(before.ID, after.ID, rule)
	if err != nil {
		e := newError(ErrCodeInvalidTrace, after, "%v", err)
		e.Rule = rule
		return e
	}
	if added {
		edge := ir.Edge{From: before.ID, To: after.ID, Rule: rule}
		r.logger.Debug("edge", "from", edge.From, "to", edge.To, "rule", rule)
		r.onEdge(edge)
	}
	return nil
}

// applyIndexPolicy makes ev available as a future predecessor.
func (r *run) applyIndexPolicy(ev *ir.Event, kind *ir.KindSpec) error {
	policy := kind.Index
	if policy.Mode == ir.IndexNone || policy.Mode == "" || !policy.When.Holds(ev) {
		return nil
	}
	tag := r.tagOf[ev.ID]

	switch policy.Mode {
	case ir.IndexInsert:
		if err := r.index.Insert(ev, tag); err != nil {
			return newError(ErrCodeInvalidTrace, ev, "%v", err)
		}
	case ir.IndexReplace:
		replaced, err := r.index.ReplaceIfEquivalent(ev, tag, func(candidate, incoming *ir.Event) bool {
			return equivalent(candidate, incoming, policy.Equivalence)
		})
		if err != nil {
			if errors.Is(err, ErrMultipleEquivalent) {
				return newError(ErrCodeAmbiguousMatch, ev, "%v", err)
			}
			return newError(ErrCodeInvalidTrace, ev, "%v", err)
		}
		if replaced != nil {
			r.logger.Debug("replaced candidate", "old", replaced.ID, "new", ev.ID)
		}
	}
	return nil
}

// equivalent reports whether two events of the same kind agree on every
// equivalence field. Missing fields never match.
func equivalent(a, b *ir.Event, fields []string) bool {
	if a.Kind != b.Kind {
		return false
	}
	for _, f := range fields {
		if !sameField(a, f, b, f) {
			return false
		}
	}
	return true
}

// String renders a channel key for logs.
func (c ChannelKey) String() string {
	return strings.ReplaceAll(string(c), keySep, "/")
}
