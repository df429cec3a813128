package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportDOTMatchesGolden(t *testing.T) {
	out, _, err := execute(t, "export", stsTracePath)
	require.NoError(t, err)

	want, err := os.ReadFile(filepath.Join("..", "export", "testdata", "golden", "sts_dot.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), out)
}

func TestExportJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")

	out, _, err := execute(t, "export", stsTracePath, "--to", "json", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "sts-openflow", doc["schema"])
	assert.Len(t, doc["edges"], 9)
	assert.Len(t, doc["nodes"], 13)
}

func TestExportFormatFromConfig(t *testing.T) {
	cfg := writeFile(t, "hb.yaml", "output:\n  export: json\n")

	out, _, err := execute(t, "export", stsTracePath, "--config", cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"), out)
}

func TestExportInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "export", stsTracePath, "--to", "svg")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid export format")
}

func TestExportAnalysisFailure(t *testing.T) {
	path := writeFile(t, "unknown.jsonl", `{"id":1,"type":"NoSuchKind"}`+"\n")

	out, _, err := execute(t, "export", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [UNKNOWN_KIND]")
	assert.NotContains(t, out, "digraph")
}
