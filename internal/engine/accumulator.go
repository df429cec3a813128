package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/happensbefore/internal/ir"
)

// ChannelKey identifies one synchronization channel, rendered from the
// schema's barrier channel fields.
type ChannelKey string

// Accumulator errors.
var (
	ErrBucketConsumed = errors.New("sync bucket already consumed")
	ErrUnknownRequest = errors.New("no sync bucket for request")
)

// Accumulator tracks unordered operations per channel between sync
// requests, and the latest sync reply per channel.
//
// Lifecycle of a bucket: created by OnSyncRequest, read and deleted by
// OnSyncReply. A second reply for the same request is an error.
type Accumulator struct {
	pending     map[ChannelKey][]ir.EventID
	buckets     map[ir.EventID][]ir.EventID
	consumed    map[ir.EventID]bool
	answered    map[ChannelKey][]ir.EventID
	outstanding map[ChannelKey][]ir.EventID
	latest      map[ChannelKey]ir.EventID
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		pending:     make(map[ChannelKey][]ir.EventID),
		buckets:     make(map[ir.EventID][]ir.EventID),
		consumed:    make(map[ir.EventID]bool),
		answered:    make(map[ChannelKey][]ir.EventID),
		outstanding: make(map[ChannelKey][]ir.EventID),
		latest:      make(map[ChannelKey]ir.EventID),
	}
}

// OnOrdinaryEvent records id as pending on ch.
func (a *Accumulator) OnOrdinaryEvent(ch ChannelKey, id ir.EventID) {
	a.pending[ch] = append(a.pending[ch], id)
}

// OnSyncRequest moves ch's pending set into the bucket for req and marks
// req outstanding. It returns the flushed ids.
func (a *Accumulator) OnSyncRequest(ch ChannelKey, req ir.EventID) []ir.EventID {
	flushed := a.pending[ch]
	if flushed == nil {
		flushed = []ir.EventID{}
	}
	delete(a.pending, ch)
	a.buckets[req] = flushed
	a.outstanding[ch] = append(a.outstanding[ch], req)
	return flushed
}

// OnSyncReply consumes the bucket of req exactly once.
func (a *Accumulator) OnSyncReply(ch ChannelKey, req ir.EventID) ([]ir.EventID, error) {
	if a.consumed[req] {
		return nil, fmt.Errorf("request %d: %w", req, ErrBucketConsumed)
	}
	bucket, ok := a.buckets[req]
	if !ok {
		return nil, fmt.Errorf("request %d: %w", req, ErrUnknownRequest)
	}
	delete(a.buckets, req)
	a.consumed[req] = true
	a.answered[ch] = append(a.answered[ch], req)
	a.outstanding[ch] = slices.DeleteFunc(a.outstanding[ch], func(id ir.EventID) bool { return id == req })
	if len(a.outstanding[ch]) == 0 {
		delete(a.outstanding, ch)
	}
	return bucket, nil
}

// Outstanding returns the requests on ch still awaiting a reply, oldest first.
func (a *Accumulator) Outstanding(ch ChannelKey) []ir.EventID {
	return slices.Clone(a.outstanding[ch])
}

// Answered returns the requests on ch whose bucket was consumed, oldest first.
func (a *Accumulator) Answered(ch ChannelKey) []ir.EventID {
	return slices.Clone(a.answered[ch])
}

// Pending returns the events on ch since its last sync request.
func (a *Accumulator) Pending(ch ChannelKey) []ir.EventID {
	return slices.Clone(a.pending[ch])
}

// OpenBuckets returns the number of flushed buckets not yet consumed.
func (a *Accumulator) OpenBuckets() int {
	return len(a.buckets)
}

// SetLatest records id as the latest sync reply on ch.
func (a *Accumulator) SetLatest(ch ChannelKey, id ir.EventID) {
	a.latest[ch] = id
}

// Latest returns the latest sync reply on ch.
func (a *Accumulator) Latest(ch ChannelKey) (ir.EventID, bool) {
	id, ok := a.latest[ch]
	return id, ok
}
