package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainGraph  = "hb/graph/v1"
	DomainSchema = "hb/schema/v1"
	DomainEvent  = "hb/event/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest hashes the canonical form of v under domain.
func Digest(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// EventDigest identifies an event by its id, kind and fields.
func EventDigest(ev Event) (string, error) {
	return Digest(DomainEvent, Object{
		"id":     Int(ev.ID),
		"kind":   String(ev.Kind),
		"fields": ev.Fields,
	})
}

// GraphDigest identifies the edge set of a graph. Edges must already be
// in canonical order (see SortEdges); the producing rule is included so
// two graphs that agree on order but disagree on provenance differ.
func GraphDigest(edges []Edge) (string, error) {
	arr := make(Array, len(edges))
	for i, e := range edges {
		arr[i] = Array{Int(e.From), Int(e.To), String(e.Rule)}
	}
	return Digest(DomainGraph, arr)
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(domain string, v Value) string {
	d, err := Digest(domain, v)
	if err != nil {
		panic(err)
	}
	return d
}
