package engine

import (
	"errors"
	"fmt"
)

// Tag is a stable identity for a logical object across its physical copies.
// Tags start at 1; 0 means "no tag".
type Tag int64

// ObjectKey is the canonical rendering of an object-id field value.
type ObjectKey string

// Registry errors. The dispatcher reports them as IDENTITY_VIOLATION.
var (
	ErrUnknownObject = errors.New("object is not registered")
	ErrDeadTag       = errors.New("tag is not live")
	ErrTagConflict   = errors.New("object is bound to a different tag")
)

// Registry assigns reference-counted tags to tracked objects.
//
// INVARIANTS:
//   - A tag exists iff its reference count is positive
//   - An object maps to at most one tag at a time
//   - Tags are never reused
type Registry struct {
	next    Tag
	tags    map[ObjectKey]Tag
	objects map[Tag]map[ObjectKey]struct{}
	refs    map[Tag]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		tags:    make(map[ObjectKey]Tag),
		objects: make(map[Tag]map[ObjectKey]struct{}),
		refs:    make(map[Tag]int),
	}
}

// Register binds obj to a tag and adds one reference.
//
// With existing == 0 the object keeps its current tag if it has one,
// otherwise it gets a fresh tag. With existing != 0 the object joins that
// tag, which must be live; an object already bound elsewhere is rejected.
func (r *Registry) Register(obj ObjectKey, existing Tag) (Tag, error) {
	current, tracked := r.tags[obj]

	tag := current
	switch {
	case existing != 0:
		if r.refs[existing] <= 0 {
			return 0, fmt.Errorf("register %q into tag %d: %w", obj, existing, ErrDeadTag)
		}
		if tracked && current != existing {
			return 0, fmt.Errorf("register %q into tag %d (has %d): %w", obj, existing, current, ErrTagConflict)
		}
		tag = existing
	case !tracked:
		tag = r.next
		r.next++
	}

	r.tags[obj] = tag
	members, ok := r.objects[tag]
	if !ok {
		members = make(map[ObjectKey]struct{})
		r.objects[tag] = members
	}
	members[obj] = struct{}{}
	r.refs[tag]++
	return tag, nil
}

// Deregister releases one reference to obj's tag. When the count reaches
// zero the tag dies and all of its objects are forgotten.
func (r *Registry) Deregister(obj ObjectKey) error {
	tag, ok := r.tags[obj]
	if !ok {
		return fmt.Errorf("deregister %q: %w", obj, ErrUnknownObject)
	}

	r.refs[tag]--
	if r.refs[tag] > 0 {
		return nil
	}
	for member := range r.objects[tag] {
		delete(r.tags, member)
	}
	delete(r.objects, tag)
	delete(r.refs, tag)
	return nil
}

// Lookup returns obj's tag.
func (r *Registry) Lookup(obj ObjectKey) (Tag, error) {
	tag, ok := r.tags[obj]
	if !ok {
		return 0, fmt.Errorf("lookup %q: %w", obj, ErrUnknownObject)
	}
	return tag, nil
}

// Live reports whether tag currently has references.
func (r *Registry) Live(tag Tag) bool {
	return r.refs[tag] > 0
}

// RefCount returns the number of references held on tag.
func (r *Registry) RefCount(tag Tag) int {
	return r.refs[tag]
}
