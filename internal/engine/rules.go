package engine

import (
	"slices"

	"github.com/roach88/happensbefore/internal/ir"
)

// compatible keeps the candidates that kind may follow and that rule
// allows. Order is preserved.
func compatible(kind *ir.KindSpec, rule ir.RuleSpec, candidates []*ir.Event) []*ir.Event {
	var out []*ir.Event
	for _, c := range candidates {
		if !slices.Contains(kind.Predecessors, c.Kind) {
			continue
		}
		if len(rule.Candidates) > 0 && !slices.Contains(rule.Candidates, c.Kind) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// selectSingle enforces the single-selection discipline: no compatible
// candidate is an abstention, exactly one is the match, more is fatal.
func selectSingle(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec, candidates []*ir.Event) (*ir.Event, error) {
	matches := compatible(kind, rule, candidates)
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, ambiguousError(ev, rule.Rule, matches)
	}
}

// applyRule runs one matching rule for ev and returns the predecessors it
// selected. An empty result means the rule abstained.
func (r *run) applyRule(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec, bucket []ir.EventID) ([]*ir.Event, error) {
	switch rule.Rule {
	case ir.RuleBackReference:
		return r.backReference(ev, kind, rule)
	case ir.RuleSameActor:
		return r.sameActor(ev, kind, rule)
	case ir.RuleTransfer:
		return r.transfer(ev, kind, rule)
	case ir.RuleProxy:
		return r.proxy(ev, kind, rule)
	case ir.RuleBarrierJoin:
		return r.barrierJoin(kind, rule, bucket), nil
	case ir.RulePersistent:
		return r.persistent(ev, kind, rule)
	default:
		return nil, newError(ErrCodeInvalidTrace, ev, "rule %q is not supported", rule.Rule)
	}
}

func one(ev *ir.Event, err error) ([]*ir.Event, error) {
	if err != nil || ev == nil {
		return nil, err
	}
	return []*ir.Event{ev}, nil
}

// backReference links ev to the event it names explicitly.
func (r *run) backReference(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec) ([]*ir.Event, error) {
	target, ok, err := r.referenced(ev, r.schema.Fields.BackReference)
	if err != nil || !ok {
		return nil, err
	}
	return one(selectSingle(ev, kind, rule, []*ir.Event{target}))
}

// sameActor links ev to the candidate at the same location sharing the
// rule's key, retiring that candidate.
func (r *run) sameActor(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec) ([]*ir.Event, error) {
	loc, ok := ev.Field(r.schema.Fields.Location)
	if !ok {
		return nil, nil
	}

	var key ViewKey
	switch rule.Key {
	case ir.KeyTag:
		tag, ok := r.tagOf[ev.ID]
		if !ok {
			return nil, nil
		}
		key = LocationTagKey(loc, tag)
	case ir.KeyMessage:
		msg, ok := ev.Field(r.schema.Fields.Message)
		if !ok {
			return nil, nil
		}
		key = LocationMessageKey(loc, msg)
	case ir.KeyBuffer:
		buf, ok := ev.Field(r.schema.Fields.Buffer)
		if !ok {
			return nil, nil
		}
		key = LocationBufferKey(loc, buf)
	default:
		return nil, newError(ErrCodeInvalidTrace, ev, "same_actor key %q is not supported", rule.Key)
	}

	match, err := selectSingle(ev, kind, rule, r.index.Query(key))
	if err != nil || match == nil {
		return nil, err
	}
	if err := r.retire(ev, rule, match); err != nil {
		return nil, err
	}
	return []*ir.Event{match}, nil
}

// transfer links an arrival to the departure of the same object, trying
// departure kinds in order. Candidates must sit on connected ports.
func (r *run) transfer(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec) ([]*ir.Event, error) {
	tag, ok := r.tagOf[ev.ID]
	if !ok {
		return nil, nil
	}
	for _, from := range rule.From {
		candidates := r.connected(ev, r.index.Query(KindTagKey(from, tag)))
		match, err := selectSingle(ev, kind, rule, candidates)
		if err != nil {
			return nil, err
		}
		if match == nil {
			continue
		}
		if err := r.retire(ev, rule, match); err != nil {
			return nil, err
		}
		return []*ir.Event{match}, nil
	}
	return nil, nil
}

// connected keeps the departures whose port pairs mirror the arrival.
// Without a topology every candidate passes.
func (r *run) connected(arrival *ir.Event, candidates []*ir.Event) []*ir.Event {
	topo := r.schema.Topology
	if topo == nil {
		return candidates
	}
	var out []*ir.Event
	for _, dep := range candidates {
		if topologyMatches(topo, arrival, dep) {
			out = append(out, dep)
		}
	}
	return out
}

func topologyMatches(topo *ir.Topology, arrival, departure *ir.Event) bool {
	if topo.Payload != "" && !sameField(arrival, topo.Payload, departure, topo.Payload) {
		return false
	}
	if topo.Connected != "" {
		a, okA := arrival.BoolField(topo.Connected)
		d, okD := departure.BoolField(topo.Connected)
		if !okA || !okD || !a || !d {
			return false
		}
	}
	for i := range topo.Self {
		if !sameField(arrival, topo.Self[i], departure, topo.Peer[i]) {
			return false
		}
		if !sameField(departure, topo.Self[i], arrival, topo.Peer[i]) {
			return false
		}
	}
	return true
}

// sameField reports whether a.fa and b.fb are both present and equal.
func sameField(a *ir.Event, fa string, b *ir.Event, fb string) bool {
	va, ok := a.Field(fa)
	if !ok {
		return false
	}
	vb, ok := b.Field(fb)
	if !ok {
		return false
	}
	return component(va) == component(vb)
}

// proxy links ev to the message that caused it, found through the proxy's
// outbound and inbound records.
func (r *run) proxy(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec) ([]*ir.Event, error) {
	if r.correlator == nil {
		return nil, nil
	}
	origin, found, err := r.correlator.Resolve(ev)
	if err != nil {
		return nil, newError(ErrCodeDanglingReference, ev, "%v", err)
	}
	if !found {
		return nil, nil
	}
	return one(selectSingle(ev, kind, rule, r.index.Query(origin)))
}

// barrierJoin links a sync reply to every compatible event flushed by its
// request. The bucket was consumed when the reply was dispatched.
func (r *run) barrierJoin(kind *ir.KindSpec, rule ir.RuleSpec, bucket []ir.EventID) []*ir.Event {
	events := make([]*ir.Event, 0, len(bucket))
	for _, id := range bucket {
		events = append(events, r.byID[id])
	}
	return compatible(kind, rule, events)
}

// persistent links ev to the latest sync reply on its channel. The reply
// is not retired.
func (r *run) persistent(ev *ir.Event, kind *ir.KindSpec, rule ir.RuleSpec) ([]*ir.Event, error) {
	ch, ok := r.channelOf(ev)
	if !ok {
		return nil, nil
	}
	id, ok := r.acc.Latest(ch)
	if !ok {
		return nil, nil
	}
	return one(selectSingle(ev, kind, rule, []*ir.Event{r.byID[id]}))
}

// retire removes a consumed candidate from the index.
func (r *run) retire(ev *ir.Event, rule ir.RuleSpec, match *ir.Event) error {
	if err := r.index.Remove(match.ID); err != nil {
		e := newError(ErrCodeDuplicateConsumption, ev, "candidate %d: %v", match.ID, err)
		e.Rule = rule.Rule
		return e
	}
	return nil
}
