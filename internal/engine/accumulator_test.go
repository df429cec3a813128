package engine

import (
	"testing"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_RequestFlushesPending(t *testing.T) {
	a := NewAccumulator()
	a.OnOrdinaryEvent("c1", 2)
	a.OnOrdinaryEvent("c1", 3)
	a.OnOrdinaryEvent("c2", 4)

	flushed := a.OnSyncRequest("c1", 5)

	assert.Equal(t, []ir.EventID{2, 3}, flushed)
	assert.Empty(t, a.Pending("c1"))
	assert.Equal(t, []ir.EventID{4}, a.Pending("c2"), "other channels untouched")
	assert.Equal(t, []ir.EventID{5}, a.Outstanding("c1"))
	assert.Equal(t, 1, a.OpenBuckets())
}

func TestAccumulator_EmptyBucket(t *testing.T) {
	a := NewAccumulator()

	flushed := a.OnSyncRequest("c1", 1)
	assert.NotNil(t, flushed)
	assert.Empty(t, flushed)

	bucket, err := a.OnSyncReply("c1", 1)
	require.NoError(t, err)
	assert.Empty(t, bucket)
}

func TestAccumulator_ReplyConsumesOnce(t *testing.T) {
	a := NewAccumulator()
	a.OnOrdinaryEvent("c1", 2)
	a.OnSyncRequest("c1", 3)

	bucket, err := a.OnSyncReply("c1", 3)
	require.NoError(t, err)
	assert.Equal(t, []ir.EventID{2}, bucket)
	assert.Equal(t, 0, a.OpenBuckets())
	assert.Empty(t, a.Outstanding("c1"))

	_, err = a.OnSyncReply("c1", 3)
	assert.ErrorIs(t, err, ErrBucketConsumed)
}

func TestAccumulator_UnknownRequest(t *testing.T) {
	a := NewAccumulator()
	_, err := a.OnSyncReply("c1", 42)
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestAccumulator_SeparateBucketsPerRequest(t *testing.T) {
	a := NewAccumulator()
	a.OnOrdinaryEvent("c1", 1)
	a.OnSyncRequest("c1", 2)
	a.OnOrdinaryEvent("c1", 3)
	a.OnSyncRequest("c1", 4)

	assert.Equal(t, []ir.EventID{2, 4}, a.Outstanding("c1"))

	second, err := a.OnSyncReply("c1", 4)
	require.NoError(t, err)
	assert.Equal(t, []ir.EventID{3}, second)

	first, err := a.OnSyncReply("c1", 2)
	require.NoError(t, err)
	assert.Equal(t, []ir.EventID{1}, first)
	assert.Equal(t, []ir.EventID{4, 2}, a.Answered("c1"))
	assert.Empty(t, a.Answered("c2"))
}

func TestAccumulator_Latest(t *testing.T) {
	a := NewAccumulator()

	_, ok := a.Latest("c1")
	assert.False(t, ok)

	a.SetLatest("c1", 4)
	a.SetLatest("c1", 9)
	id, ok := a.Latest("c1")
	require.True(t, ok)
	assert.Equal(t, ir.EventID(9), id)

	_, ok = a.Latest("c2")
	assert.False(t, ok)
}
