package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("payload")
	a := hashWithDomain(DomainGraph, data)
	b := hashWithDomain(DomainEvent, data)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64, "SHA-256 hex is 64 characters")
}

func TestDigestDeterministic(t *testing.T) {
	v := Object{"a": Int(1), "b": Array{String("x")}}
	d1, err := Digest(DomainEvent, v)
	require.NoError(t, err)
	d2, err := Digest(DomainEvent, Object{"b": Array{String("x")}, "a": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestEventDigestChangesWithFields(t *testing.T) {
	ev1 := Event{ID: 1, Kind: "Send", Fields: Object{"dpid": Int(1)}}
	ev2 := Event{ID: 1, Kind: "Send", Fields: Object{"dpid": Int(2)}}

	d1, err := EventDigest(ev1)
	require.NoError(t, err)
	d2, err := EventDigest(ev2)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestGraphDigest(t *testing.T) {
	edges := []Edge{{From: 1, To: 2, Rule: RuleTransfer}, {From: 2, To: 3, Rule: RuleSameActor}}
	d1, err := GraphDigest(edges)
	require.NoError(t, err)

	relabeled := []Edge{{From: 1, To: 2, Rule: RuleSameActor}, {From: 2, To: 3, Rule: RuleSameActor}}
	d2, err := GraphDigest(relabeled)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2, "rule provenance is part of the digest")

	empty, err := GraphDigest(nil)
	require.NoError(t, err)
	assert.Equal(t, MustDigest(DomainGraph, Array{}), empty)
}
