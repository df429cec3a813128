package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/happensbefore/internal/engine"
	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/schema"
	"github.com/roach88/happensbefore/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// analyzeSTS runs the built-in schema over the reference trace.
func analyzeSTS(t *testing.T) *engine.Graph {
	t.Helper()
	return analyze(t, testutil.STSTrace())
}

func analyze(t *testing.T, events []ir.Event) *engine.Graph {
	t.Helper()
	sch, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default() failed: %v", err)
	}
	g, err := engine.New(sch).Run(context.Background(), events)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return g
}
