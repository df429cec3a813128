package engine

import (
	"testing"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(events []*ir.Event) []ir.EventID {
	out := make([]ir.EventID, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

func TestIndex_InsertPopulatesViews(t *testing.T) {
	x := NewIndex(testFields)
	ev := testutil.Ev(1, "Receive", "loc", "A", "cid", 3, "msg", 9, "buf", "b1", "mt", "PKT")
	require.NoError(t, x.Insert(&ev, 5))

	keys := []ViewKey{
		KindKey("Receive"),
		KindLocationKey("Receive", ir.String("A")),
		TagKey(5),
		KindTagKey("Receive", 5),
		KindLocationChannelMessageKey("Receive", ir.String("A"), ir.Int(3), ir.Int(9)),
		LocationTagKey(ir.String("A"), 5),
		LocationMessageKey(ir.String("A"), ir.Int(9)),
		LocationBufferKey(ir.String("A"), ir.String("b1")),
		KindMessageKindLocationKey("Receive", ir.String("PKT"), ir.String("A")),
	}
	for _, k := range keys {
		assert.Equal(t, []ir.EventID{1}, ids(x.Query(k)), "view %s", k)
	}
	assert.Equal(t, 1, x.Len())
}

func TestIndex_UntaggedEventSkipsTagViews(t *testing.T) {
	x := NewIndex(testFields)
	ev := testutil.Ev(1, "Status", "loc", "A")
	require.NoError(t, x.Insert(&ev, 0))

	assert.Empty(t, x.Query(TagKey(0)))
	assert.Empty(t, x.Query(LocationTagKey(ir.String("A"), 0)))
	assert.Equal(t, []ir.EventID{1}, ids(x.Query(KindLocationKey("Status", ir.String("A")))))
}

func TestIndex_ValueTypesDoNotCollide(t *testing.T) {
	x := NewIndex(testFields)
	num := testutil.Ev(1, "Emit", "loc", "A", "msg", 1)
	str := testutil.Ev(2, "Emit", "loc", "A", "msg", "1")
	require.NoError(t, x.Insert(&num, 0))
	require.NoError(t, x.Insert(&str, 0))

	assert.Equal(t, []ir.EventID{1}, ids(x.Query(LocationMessageKey(ir.String("A"), ir.Int(1)))))
	assert.Equal(t, []ir.EventID{2}, ids(x.Query(LocationMessageKey(ir.String("A"), ir.String("1")))))
}

func TestIndex_RemoveClearsEveryView(t *testing.T) {
	x := NewIndex(testFields)
	a := testutil.Ev(1, "Send", "loc", "A", "msg", 1)
	b := testutil.Ev(2, "Send", "loc", "A", "msg", 1)
	require.NoError(t, x.Insert(&a, 7))
	require.NoError(t, x.Insert(&b, 7))

	require.NoError(t, x.Remove(1))

	assert.False(t, x.Contains(1))
	assert.True(t, x.Contains(2))
	assert.Equal(t, []ir.EventID{2}, ids(x.Query(KindKey("Send"))))
	assert.Equal(t, []ir.EventID{2}, ids(x.Query(LocationTagKey(ir.String("A"), 7))))
	assert.Equal(t, []ir.EventID{2}, ids(x.Query(LocationMessageKey(ir.String("A"), ir.Int(1)))))
}

func TestIndex_RemoveUsesInsertionKeys(t *testing.T) {
	x := NewIndex(testFields)
	ev := testutil.Ev(1, "Send", "loc", "A")
	require.NoError(t, x.Insert(&ev, 3))

	// Mutating the event after insertion must not strand it in a view.
	ev.Fields["loc"] = ir.String("B")
	require.NoError(t, x.Remove(1))

	assert.Empty(t, x.Query(KindLocationKey("Send", ir.String("A"))))
	assert.Empty(t, x.Query(KindLocationKey("Send", ir.String("B"))))
}

func TestIndex_Errors(t *testing.T) {
	x := NewIndex(testFields)
	ev := testutil.Ev(1, "Send", "loc", "A")
	require.NoError(t, x.Insert(&ev, 0))

	assert.ErrorIs(t, x.Insert(&ev, 0), ErrAlreadyIndexed)
	assert.ErrorIs(t, x.Remove(99), ErrNotIndexed)

	require.NoError(t, x.Remove(1))
	assert.ErrorIs(t, x.Remove(1), ErrNotIndexed, "second removal is a duplicate consumption")
}

func TestIndex_QueryIsSortedAndNonNil(t *testing.T) {
	x := NewIndex(testFields)
	for _, id := range []int64{5, 2, 9} {
		ev := testutil.Ev(id, "Op", "loc", "A")
		require.NoError(t, x.Insert(&ev, 0))
	}

	assert.Equal(t, []ir.EventID{2, 5, 9}, ids(x.Query(KindKey("Op"))))
	assert.Equal(t, []ir.EventID{2, 5, 9}, x.IDs())

	empty := x.Query(KindKey("Missing"))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func sameLoc(candidate, incoming *ir.Event) bool {
	return equivalent(candidate, incoming, []string{"loc"})
}

func TestIndex_ReplaceIfEquivalent(t *testing.T) {
	x := NewIndex(testFields)
	old := testutil.Ev(1, "Status", "loc", "A")
	other := testutil.Ev(2, "Status", "loc", "B")
	require.NoError(t, x.Insert(&old, 0))
	require.NoError(t, x.Insert(&other, 0))

	incoming := testutil.Ev(3, "Status", "loc", "A")
	replaced, err := x.ReplaceIfEquivalent(&incoming, 0, sameLoc)
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, ir.EventID(1), replaced.ID)
	assert.Equal(t, []ir.EventID{2, 3}, x.IDs())
}

func TestIndex_ReplaceWithoutMatchInserts(t *testing.T) {
	x := NewIndex(testFields)
	incoming := testutil.Ev(1, "Status", "loc", "A")

	replaced, err := x.ReplaceIfEquivalent(&incoming, 0, sameLoc)
	require.NoError(t, err)
	assert.Nil(t, replaced)
	assert.True(t, x.Contains(1))
}

func TestIndex_ReplaceRejectsMultipleMatches(t *testing.T) {
	x := NewIndex(testFields)
	a := testutil.Ev(1, "Status", "loc", "A")
	b := testutil.Ev(2, "Status", "loc", "A")
	require.NoError(t, x.Insert(&a, 0))
	require.NoError(t, x.Insert(&b, 0))

	incoming := testutil.Ev(3, "Status", "loc", "A")
	_, err := x.ReplaceIfEquivalent(&incoming, 0, sameLoc)
	require.ErrorIs(t, err, ErrMultipleEquivalent)
	assert.Equal(t, []ir.EventID{1, 2}, x.IDs(), "index unchanged on failure")
}

func TestEquivalent(t *testing.T) {
	a := testutil.Ev(1, "Status", "loc", "A", "cid", 1)
	b := testutil.Ev(2, "Status", "loc", "A", "cid", 1)
	c := testutil.Ev(3, "Other", "loc", "A", "cid", 1)
	d := testutil.Ev(4, "Status", "loc", "A")

	fields := []string{"loc", "cid"}
	assert.True(t, equivalent(&a, &b, fields))
	assert.False(t, equivalent(&a, &c, fields), "different kinds")
	assert.False(t, equivalent(&a, &d, fields), "missing field")
}
