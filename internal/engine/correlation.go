package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// Correlator errors.
var (
	ErrMissingCorrelationField = errors.New("correlation record lacks a key field")
	ErrUnknownInboundRecord    = errors.New("no inbound correlation record for link")
)

// Correlator holds the auxiliary records injected by a proxy between
// controller and switches.
//
// Outbound records are single use: resolving one deletes it. Inbound
// records stay, because several outbound messages can be caused by the
// same inbound message.
type Correlator struct {
	spec     *ir.CorrelationSpec
	fields   ir.FieldMap
	outbound map[string]*ir.Event
	inbound  map[string]ViewKey
}

// NewCorrelator creates an empty correlator for spec.
func NewCorrelator(spec *ir.CorrelationSpec, fields ir.FieldMap) *Correlator {
	return &Correlator{
		spec:     spec,
		fields:   fields,
		outbound: make(map[string]*ir.Event),
		inbound:  make(map[string]ViewKey),
	}
}

// tuple renders the named fields of ev as one key. ok is false when any
// field is absent.
func tuple(ev *ir.Event, names []string) (string, bool) {
	parts := make([]string, len(names))
	for i, name := range names {
		v, ok := ev.Field(name)
		if !ok {
			return "", false
		}
		parts[i] = component(v)
	}
	return strings.Join(parts, keySep), true
}

// Outbound reports whether ev is an outbound record.
func (c *Correlator) Outbound(ev *ir.Event) bool {
	return ev.Has(c.spec.Discriminator)
}

// Record stores a correlation event. An inbound record remembers the view
// key under which its origin is found, so later lookups see whichever
// origin is the current candidate.
func (c *Correlator) Record(ev *ir.Event) error {
	if c.Outbound(ev) {
		key, ok := tuple(ev, c.spec.OutboundKey)
		if !ok {
			return fmt.Errorf("outbound record %d: %w", ev.ID, ErrMissingCorrelationField)
		}
		c.outbound[key] = ev
		return nil
	}

	key, ok := tuple(ev, c.spec.InboundKey)
	if !ok {
		return fmt.Errorf("inbound record %d: %w", ev.ID, ErrMissingCorrelationField)
	}
	loc, hasLoc := ev.Field(c.fields.Location)
	ch, hasCh := ev.Field(c.fields.Channel)
	msg, hasMsg := ev.Field(c.fields.Message)
	if !hasLoc || !hasCh || !hasMsg {
		return fmt.Errorf("inbound record %d: %w", ev.ID, ErrMissingCorrelationField)
	}
	c.inbound[key] = KindLocationChannelMessageKey(c.spec.Origin, loc, ch, msg)
	return nil
}

// Resolve finds the origin view for ev through its outbound record,
// consuming that record. found is false when ev has no outbound record.
func (c *Correlator) Resolve(ev *ir.Event) (origin ViewKey, found bool, err error) {
	key, ok := tuple(ev, c.spec.OutboundMatch)
	if !ok {
		return "", false, nil
	}
	out, ok := c.outbound[key]
	if !ok {
		return "", false, nil
	}
	delete(c.outbound, key)

	link, ok := tuple(out, c.spec.OutboundLink)
	if !ok {
		return "", false, fmt.Errorf("outbound record %d: %w", out.ID, ErrMissingCorrelationField)
	}
	origin, ok = c.inbound[link]
	if !ok {
		return "", false, fmt.Errorf("outbound record %d: %w", out.ID, ErrUnknownInboundRecord)
	}
	return origin, true, nil
}

// PendingOutbound returns the number of unconsumed outbound records.
func (c *Correlator) PendingOutbound() int {
	return len(c.outbound)
}
