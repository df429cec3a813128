package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FreshTagsStartAtOne(t *testing.T) {
	r := NewRegistry()

	a, err := r.Register("a", 0)
	require.NoError(t, err)
	b, err := r.Register("b", 0)
	require.NoError(t, err)

	assert.Equal(t, Tag(1), a)
	assert.Equal(t, Tag(2), b)
	assert.True(t, r.Live(a))
	assert.Equal(t, 1, r.RefCount(a))
}

func TestRegistry_ReregisterKeepsTagAndCounts(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register("a", 0)
	require.NoError(t, err)
	again, err := r.Register("a", 0)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 2, r.RefCount(first))

	require.NoError(t, r.Deregister("a"))
	assert.True(t, r.Live(first), "one reference remains")

	require.NoError(t, r.Deregister("a"))
	assert.False(t, r.Live(first))
}

func TestRegistry_ContinuationJoinsExistingTag(t *testing.T) {
	r := NewRegistry()

	tag, err := r.Register("orig", 0)
	require.NoError(t, err)
	copyTag, err := r.Register("copy", tag)
	require.NoError(t, err)

	assert.Equal(t, tag, copyTag)
	assert.Equal(t, 2, r.RefCount(tag))

	got, err := r.Lookup("copy")
	require.NoError(t, err)
	assert.Equal(t, tag, got)
}

func TestRegistry_DeadTagForgetsAllObjects(t *testing.T) {
	r := NewRegistry()

	tag, err := r.Register("orig", 0)
	require.NoError(t, err)
	_, err = r.Register("copy", tag)
	require.NoError(t, err)

	require.NoError(t, r.Deregister("orig"))
	require.NoError(t, r.Deregister("copy"))

	_, err = r.Lookup("orig")
	assert.ErrorIs(t, err, ErrUnknownObject)
	_, err = r.Lookup("copy")
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestRegistry_TagsAreNeverReused(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register("a", 0)
	require.NoError(t, err)
	require.NoError(t, r.Deregister("a"))

	second, err := r.Register("a", 0)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		run  func(r *Registry) error
		want error
	}{
		{
			name: "deregister unknown object",
			run:  func(r *Registry) error { return r.Deregister("ghost") },
			want: ErrUnknownObject,
		},
		{
			name: "register into dead tag",
			run: func(r *Registry) error {
				tag, _ := r.Register("a", 0)
				_ = r.Deregister("a")
				_, err := r.Register("b", tag)
				return err
			},
			want: ErrDeadTag,
		},
		{
			name: "register into never-issued tag",
			run: func(r *Registry) error {
				_, err := r.Register("a", 42)
				return err
			},
			want: ErrDeadTag,
		},
		{
			name: "object bound to a different tag",
			run: func(r *Registry) error {
				_, _ = r.Register("a", 0)
				other, _ := r.Register("b", 0)
				_, err := r.Register("a", other)
				return err
			},
			want: ErrTagConflict,
		},
		{
			name: "lookup unknown object",
			run: func(r *Registry) error {
				_, err := r.Lookup("ghost")
				return err
			},
			want: ErrUnknownObject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(NewRegistry()), tt.want)
		})
	}
}
