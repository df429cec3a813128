package engine

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/happensbefore/internal/ir"
)

// View names one secondary lookup of the candidate index.
type View int

const (
	ViewKind View = iota
	ViewKindLocation
	ViewTag
	ViewKindTag
	ViewKindLocationChannelMessage
	ViewLocationTag
	ViewLocationMessage
	ViewLocationBuffer
	ViewKindMessageKindLocation
)

var viewNames = [...]string{
	ViewKind:                       "kind",
	ViewKindLocation:               "kind,location",
	ViewTag:                        "tag",
	ViewKindTag:                    "kind,tag",
	ViewKindLocationChannelMessage: "kind,location,channel,message",
	ViewLocationTag:                "location,tag",
	ViewLocationMessage:            "location,message",
	ViewLocationBuffer:             "location,buffer",
	ViewKindMessageKindLocation:    "kind,message_kind,location",
}

func (v View) String() string {
	if int(v) < len(viewNames) {
		return viewNames[v]
	}
	return "view(" + strconv.Itoa(int(v)) + ")"
}

// ViewKey addresses one bucket of one view.
type ViewKey string

const keySep = "\x1f"

func makeKey(v View, parts ...string) ViewKey {
	return ViewKey(v.String() + "|" + strings.Join(parts, keySep))
}

// component renders a field value for use inside a key. Canonical JSON
// keeps "1" and 1 distinct.
func component(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return ir.Text(v)
	}
	return string(data)
}

func tagComponent(t Tag) string { return strconv.FormatInt(int64(t), 10) }

// Key constructors, one per view.

func KindKey(kind string) ViewKey { return makeKey(ViewKind, kind) }

func KindLocationKey(kind string, loc ir.Value) ViewKey {
	return makeKey(ViewKindLocation, kind, component(loc))
}

func TagKey(tag Tag) ViewKey { return makeKey(ViewTag, tagComponent(tag)) }

func KindTagKey(kind string, tag Tag) ViewKey {
	return makeKey(ViewKindTag, kind, tagComponent(tag))
}

func KindLocationChannelMessageKey(kind string, loc, ch, msg ir.Value) ViewKey {
	return makeKey(ViewKindLocationChannelMessage, kind, component(loc), component(ch), component(msg))
}

func LocationTagKey(loc ir.Value, tag Tag) ViewKey {
	return makeKey(ViewLocationTag, component(loc), tagComponent(tag))
}

func LocationMessageKey(loc, msg ir.Value) ViewKey {
	return makeKey(ViewLocationMessage, component(loc), component(msg))
}

func LocationBufferKey(loc, buf ir.Value) ViewKey {
	return makeKey(ViewLocationBuffer, component(loc), component(buf))
}

func KindMessageKindLocationKey(kind string, mk, loc ir.Value) ViewKey {
	return makeKey(ViewKindMessageKindLocation, kind, component(mk), component(loc))
}

// Index errors.
var (
	ErrAlreadyIndexed     = errors.New("event is already a candidate")
	ErrNotIndexed         = errors.New("event is not a candidate")
	ErrMultipleEquivalent = errors.New("more than one equivalent candidate")
)

// Index is the candidate index: the master set of events that may still
// become predecessors, plus secondary views over it.
//
// INVARIANTS:
//   - An event is in a view bucket iff it is in the master set and
//     qualified for that view when inserted
//   - Keys are computed once at insertion and reused on removal
type Index struct {
	fields  ir.FieldMap
	events  map[ir.EventID]*ir.Event
	keys    map[ir.EventID][]ViewKey
	buckets map[ViewKey]map[ir.EventID]struct{}
}

// NewIndex creates an empty index over the given field map.
func NewIndex(fields ir.FieldMap) *Index {
	return &Index{
		fields:  fields,
		events:  make(map[ir.EventID]*ir.Event),
		keys:    make(map[ir.EventID][]ViewKey),
		buckets: make(map[ViewKey]map[ir.EventID]struct{}),
	}
}

// keysFor lists the view keys ev qualifies for. tag == 0 means untagged.
func (x *Index) keysFor(ev *ir.Event, tag Tag) []ViewKey {
	loc, hasLoc := ev.Field(x.fields.Location)
	ch, hasCh := ev.Field(x.fields.Channel)
	msg, hasMsg := ev.Field(x.fields.Message)
	buf, hasBuf := ev.Field(x.fields.Buffer)
	mk, hasMK := ev.Field(x.fields.MessageKind)
	tagged := tag != 0

	keys := []ViewKey{KindKey(ev.Kind)}
	if hasLoc {
		keys = append(keys, KindLocationKey(ev.Kind, loc))
	}
	if tagged {
		keys = append(keys, TagKey(tag), KindTagKey(ev.Kind, tag))
	}
	if hasLoc && hasCh && hasMsg {
		keys = append(keys, KindLocationChannelMessageKey(ev.Kind, loc, ch, msg))
	}
	if hasLoc && tagged {
		keys = append(keys, LocationTagKey(loc, tag))
	}
	if hasLoc && hasMsg {
		keys = append(keys, LocationMessageKey(loc, msg))
	}
	if hasLoc && hasBuf {
		keys = append(keys, LocationBufferKey(loc, buf))
	}
	if hasMK && hasLoc {
		keys = append(keys, KindMessageKindLocationKey(ev.Kind, mk, loc))
	}
	return keys
}

// Insert adds ev to the master set and every view it qualifies for.
func (x *Index) Insert(ev *ir.Event, tag Tag) error {
	if _, ok := x.events[ev.ID]; ok {
		return fmt.Errorf("insert %d: %w", ev.ID, ErrAlreadyIndexed)
	}
	keys := x.keysFor(ev, tag)
	x.events[ev.ID] = ev
	x.keys[ev.ID] = keys
	for _, k := range keys {
		bucket, ok := x.buckets[k]
		if !ok {
			bucket = make(map[ir.EventID]struct{})
			x.buckets[k] = bucket
		}
		bucket[ev.ID] = struct{}{}
	}
	return nil
}

// Remove retires id from the master set and all views.
func (x *Index) Remove(id ir.EventID) error {
	if _, ok := x.events[id]; !ok {
		return fmt.Errorf("remove %d: %w", id, ErrNotIndexed)
	}
	for _, k := range x.keys[id] {
		bucket := x.buckets[k]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(x.buckets, k)
		}
	}
	delete(x.events, id)
	delete(x.keys, id)
	return nil
}

// Contains reports whether id is a candidate.
func (x *Index) Contains(id ir.EventID) bool {
	_, ok := x.events[id]
	return ok
}

// Len returns the size of the master set.
func (x *Index) Len() int {
	return len(x.events)
}

// IDs returns all candidate ids in ascending order.
func (x *Index) IDs() []ir.EventID {
	ids := make([]ir.EventID, 0, len(x.events))
	for id := range x.events {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Query returns the candidates in one view bucket, ordered by id.
// Returns an empty slice, not nil, when the bucket is empty.
func (x *Index) Query(key ViewKey) []*ir.Event {
	bucket := x.buckets[key]
	out := make([]*ir.Event, 0, len(bucket))
	for id := range bucket {
		out = append(out, x.events[id])
	}
	ir.SortEvents(out)
	return out
}

// ReplaceIfEquivalent inserts ev after retiring the one candidate that
// equivalent reports as indistinguishable from it. It returns the retired
// event, or nil if none was found. Finding more than one is an error and
// leaves the index unchanged.
func (x *Index) ReplaceIfEquivalent(ev *ir.Event, tag Tag, equivalent func(candidate, incoming *ir.Event) bool) (*ir.Event, error) {
	var matches []*ir.Event
	for _, id := range x.IDs() {
		if old := x.events[id]; equivalent(old, ev) {
			matches = append(matches, old)
		}
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("replace with %d: %d matches: %w", ev.ID, len(matches), ErrMultipleEquivalent)
	}

	var replaced *ir.Event
	if len(matches) == 1 {
		replaced = matches[0]
		if err := x.Remove(replaced.ID); err != nil {
			return nil, err
		}
	}
	if err := x.Insert(ev, tag); err != nil {
		return nil, err
	}
	return replaced, nil
}
