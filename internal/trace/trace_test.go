package trace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/roach88/happensbefore/internal/ir"
	"github.com/roach88/happensbefore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSkipsCommentsAndBlankLines(t *testing.T) {
	src := `# header
{"id": 2, "type": "Receive", "loc": "B"}

   # indented comment
{"id": 1, "type": "Send", "loc": "A", "ok": true, "tags": [1, "x"], "meta": {"k": null}}`

	events, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, ir.EventID(1), events[0].ID, "sorted by id")
	assert.Equal(t, "Send", events[0].Kind)
	assert.Equal(t, ir.String("A"), events[0].Fields["loc"])
	assert.Equal(t, ir.Bool(true), events[0].Fields["ok"])
	assert.Equal(t, ir.Array{ir.Int(1), ir.String("x")}, events[0].Fields["tags"])
	assert.NotContains(t, events[0].Fields, "id")
	assert.NotContains(t, events[0].Fields, "type")

	_, present := events[0].Field("meta")
	assert.True(t, present)
}

func TestDecodeEmpty(t *testing.T) {
	events, err := Decode(strings.NewReader("\n# nothing\n"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		want error
	}{
		{"missing id", `{"type": "A"}`, 1, ErrMissingID},
		{"string id", `{"id": "1", "type": "A"}`, 1, ErrMissingID},
		{"missing type", `{"id": 1}`, 1, ErrMissingType},
		{"empty type", `{"id": 1, "type": ""}`, 1, ErrMissingType},
		{"duplicate id", "{\"id\": 1, \"type\": \"A\"}\n# c\n{\"id\": 1, \"type\": \"B\"}", 3, ErrDuplicateID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			require.ErrorIs(t, err, tt.want)
			var le *LineError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.line, le.Line)
		})
	}
}

func TestDecodeRejectsFloatsAndBadJSON(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"id": 1, "type": "A", "x": 1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats not allowed")

	_, err = Decode(strings.NewReader(`{"id": 1, "type": `))
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 1, le.Line)
}

func TestEncodeRoundTrip(t *testing.T) {
	events := testutil.STSTrace()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, events))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, events, decoded)
}

func TestEncodeIsCanonical(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []ir.Event{testutil.Ev(3, "Send", "loc", "A", "buf", "b")}))
	assert.Equal(t, `{"buf":"b","id":3,"loc":"A","type":"Send"}`+"\n", buf.String())
}

func TestEncodeRejectsReservedFields(t *testing.T) {
	ev := testutil.Ev(1, "A", "type", "shadow")
	err := Encode(&bytes.Buffer{}, []ir.Event{ev})
	assert.ErrorContains(t, err, "reserved")
}

func TestReadFileFixture(t *testing.T) {
	events, err := ReadFile("../../testdata/traces/sts.jsonl")
	require.NoError(t, err)
	assert.Equal(t, testutil.STSTrace(), events)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(t.TempDir() + "/nope.jsonl")
	assert.ErrorContains(t, err, "open trace")
}
