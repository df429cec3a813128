package ir

import (
	"slices"
	"sort"
)

// Role classifies how the dispatcher treats a kind.
type Role string

const (
	// RoleOrdinary events run matching rules and may enter the candidate index.
	RoleOrdinary Role = "ordinary"
	// RoleRegister events bind an object to an identity tag.
	RoleRegister Role = "register"
	// RoleDeregister events release one reference to an object's tag.
	RoleDeregister Role = "deregister"
	// RoleCorrelation events are auxiliary records consumed by the proxy rule.
	RoleCorrelation Role = "correlation"
	// RoleIgnored events are accepted and never matched or indexed.
	RoleIgnored Role = "ignored"
)

// Bookkeeping reports whether events of this role are excluded from graph nodes.
func (r Role) Bookkeeping() bool {
	return r == RoleRegister || r == RoleDeregister || r == RoleCorrelation
}

// RuleKind names a matching rule.
type RuleKind string

const (
	RuleBackReference RuleKind = "back_reference"
	RuleSameActor     RuleKind = "same_actor"
	RuleTransfer      RuleKind = "transfer"
	RuleProxy         RuleKind = "proxy"
	RuleBarrierJoin   RuleKind = "barrier_join"
	RulePersistent    RuleKind = "persistent"
)

// Retiring reports whether a match under this rule removes the
// predecessor from the candidate index.
func (k RuleKind) Retiring() bool {
	return k == RuleSameActor || k == RuleTransfer
}

// ActorKey selects the field a same_actor rule joins on.
type ActorKey string

const (
	KeyTag     ActorKey = "tag"
	KeyMessage ActorKey = "message"
	KeyBuffer  ActorKey = "buffer"
)

// IndexMode is the insertion policy applied after rules run.
type IndexMode string

const (
	IndexInsert  IndexMode = "insert"
	IndexReplace IndexMode = "replace"
	IndexNone    IndexMode = "none"
)

// BarrierMatch selects how a sync reply finds its request.
type BarrierMatch string

const (
	// MatchUnique requires exactly one outstanding request on the channel.
	MatchUnique BarrierMatch = "unique"
	// MatchFIFO pairs a reply with the oldest outstanding request.
	MatchFIFO BarrierMatch = "fifo"
)

// Guard restricts a rule or policy to events whose Field renders (via Text)
// to one of Values. A nil guard always holds.
type Guard struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Holds reports whether ev satisfies the guard.
func (g *Guard) Holds(ev *Event) bool {
	if g == nil {
		return true
	}
	s, ok := ev.TextField(g.Field)
	return ok && slices.Contains(g.Values, s)
}

// RuleSpec is one entry of a kind's rule sequence.
type RuleSpec struct {
	Rule RuleKind `json:"rule"`

	// Key is the same_actor join field.
	Key ActorKey `json:"key,omitempty"`

	// From lists departure kinds for transfer, tried in order.
	From []string `json:"from,omitempty"`

	// Candidates narrows the compatibility row for this rule only.
	Candidates []string `json:"candidates,omitempty"`

	When *Guard `json:"when,omitempty"`
}

// IndexSpec is the candidate index policy for a kind.
type IndexSpec struct {
	Mode        IndexMode `json:"mode"`
	Equivalence []string  `json:"equivalence,omitempty"`
	When        *Guard    `json:"when,omitempty"`
}

// KindSpec describes one member of the kind enumeration.
type KindSpec struct {
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Trackable bool   `json:"trackable"`

	// Mandatory kinds must find a predecessor; a miss is fatal.
	Mandatory bool `json:"mandatory"`

	// Predecessors is the compatibility row: kinds allowed directly before.
	Predecessors []string   `json:"predecessors"`
	Rules        []RuleSpec `json:"rules"`
	Index        IndexSpec  `json:"index"`
}

// FieldMap names the trace fields that play each structural part.
// Empty names are unused by the schema.
type FieldMap struct {
	Location        string `json:"location"`
	Channel         string `json:"channel"`
	Message         string `json:"message"`
	MessageKind     string `json:"message_kind"`
	Buffer          string `json:"buffer"`
	BackReference   string `json:"back_reference"`
	Object          string `json:"object"`
	ObjectReference string `json:"object_reference"`
}

// Topology describes port connectivity used to filter transfer candidates.
// Self[i] of the arrival must equal Peer[i] of the departure and vice versa.
type Topology struct {
	Payload   string   `json:"payload"`
	Connected string   `json:"connected"`
	Self      []string `json:"self"`
	Peer      []string `json:"peer"`
}

// Selector picks events of Kind that satisfy When.
type Selector struct {
	Kind string `json:"kind"`
	When *Guard `json:"when,omitempty"`
}

// Matches reports whether ev is selected.
func (s *Selector) Matches(ev *Event) bool {
	return s != nil && ev.Kind == s.Kind && s.When.Holds(ev)
}

// BarrierSpec configures the synchronization accumulator.
type BarrierSpec struct {
	// Members are kinds whose events join the channel's pending set.
	Members []string `json:"members"`
	// Channel lists the fields that form the channel key.
	Channel   []string     `json:"channel"`
	Request   Selector     `json:"request"`
	Reply     Selector     `json:"reply"`
	Match     BarrierMatch `json:"match"`
	Correlate string       `json:"correlate,omitempty"`
}

// CorrelationSpec configures proxy correlation through auxiliary records.
// A correlation event carrying Discriminator is outbound, otherwise inbound.
type CorrelationSpec struct {
	Kind          string   `json:"kind"`
	Discriminator string   `json:"discriminator"`
	OutboundKey   []string `json:"outbound_key"`
	OutboundMatch []string `json:"outbound_match"`
	OutboundLink  []string `json:"outbound_link"`
	InboundKey    []string `json:"inbound_key"`
	// Origin is the kind looked up by (location, channel, message) of an
	// inbound record; it becomes the proxied predecessor.
	Origin string `json:"origin"`
}

// Schema is the compiled, immutable description of a trace vocabulary.
type Schema struct {
	Name        string               `json:"name"`
	Fields      FieldMap             `json:"fields"`
	Topology    *Topology            `json:"topology,omitempty"`
	Barrier     *BarrierSpec         `json:"barrier,omitempty"`
	Correlation *CorrelationSpec     `json:"correlation,omitempty"`
	Kinds       map[string]*KindSpec `json:"kinds"`
}

// Kind returns the spec for name.
func (s *Schema) Kind(name string) (*KindSpec, bool) {
	k, ok := s.Kinds[name]
	return k, ok
}

// KindNames returns all kind names sorted.
func (s *Schema) KindNames() []string {
	names := make([]string, 0, len(s.Kinds))
	for name := range s.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allows reports whether an edge predecessor -> successor is legal.
func (s *Schema) Allows(successor, predecessor string) bool {
	k, ok := s.Kinds[successor]
	return ok && slices.Contains(k.Predecessors, predecessor)
}

// IsBarrierMember reports whether kind joins the channel pending set.
func (s *Schema) IsBarrierMember(kind string) bool {
	return s.Barrier != nil && slices.Contains(s.Barrier.Members, kind)
}

// Digest identifies the schema content.
func (s *Schema) Digest() (string, error) {
	kinds := make(Array, 0, len(s.Kinds))
	for _, name := range s.KindNames() {
		k := s.Kinds[name]
		rules := make(Array, len(k.Rules))
		for i, r := range k.Rules {
			rules[i] = Object{
				"rule":       String(r.Rule),
				"key":        String(r.Key),
				"from":       stringArray(r.From),
				"candidates": stringArray(r.Candidates),
				"when":       guardValue(r.When),
			}
		}
		kinds = append(kinds, Object{
			"name":         String(name),
			"role":         String(k.Role),
			"trackable":    Bool(k.Trackable),
			"mandatory":    Bool(k.Mandatory),
			"predecessors": stringArray(k.Predecessors),
			"rules":        rules,
			"index": Object{
				"mode":        String(k.Index.Mode),
				"equivalence": stringArray(k.Index.Equivalence),
				"when":        guardValue(k.Index.When),
			},
		})
	}

	obj := Object{
		"version": String(SchemaVersion),
		"fields": Object{
			"location":         String(s.Fields.Location),
			"channel":          String(s.Fields.Channel),
			"message":          String(s.Fields.Message),
			"message_kind":     String(s.Fields.MessageKind),
			"buffer":           String(s.Fields.Buffer),
			"back_reference":   String(s.Fields.BackReference),
			"object":           String(s.Fields.Object),
			"object_reference": String(s.Fields.ObjectReference),
		},
		"kinds": kinds,
	}
	if t := s.Topology; t != nil {
		obj["topology"] = Object{
			"payload":   String(t.Payload),
			"connected": String(t.Connected),
			"self":      stringArray(t.Self),
			"peer":      stringArray(t.Peer),
		}
	}
	if b := s.Barrier; b != nil {
		obj["barrier"] = Object{
			"members":   stringArray(b.Members),
			"channel":   stringArray(b.Channel),
			"request":   Object{"kind": String(b.Request.Kind), "when": guardValue(b.Request.When)},
			"reply":     Object{"kind": String(b.Reply.Kind), "when": guardValue(b.Reply.When)},
			"match":     String(b.Match),
			"correlate": String(b.Correlate),
		}
	}
	if c := s.Correlation; c != nil {
		obj["correlation"] = Object{
			"kind":           String(c.Kind),
			"discriminator":  String(c.Discriminator),
			"outbound_key":   stringArray(c.OutboundKey),
			"outbound_match": stringArray(c.OutboundMatch),
			"outbound_link":  stringArray(c.OutboundLink),
			"inbound_key":    stringArray(c.InboundKey),
			"origin":         String(c.Origin),
		}
	}
	return Digest(DomainSchema, obj)
}

func stringArray(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

func guardValue(g *Guard) Value {
	if g == nil {
		return Null{}
	}
	return Object{"field": String(g.Field), "values": stringArray(g.Values)}
}
