// Package trace reads and writes event traces as newline-delimited JSON.
//
// Each line is one JSON object. The "id" key holds the integer event id
// and "type" the event kind; every other key becomes an event field.
// Blank lines and lines starting with '#' are skipped.
package trace

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/roach88/happensbefore/internal/ir"
)

// Reserved keys.
const (
	KeyID   = "id"
	KeyType = "type"
)

// DefaultBufferSize is the read buffer used by Decode.
const DefaultBufferSize = 64 * 1024

// Decoding errors.
var (
	ErrMissingID   = errors.New("missing integer \"id\"")
	ErrMissingType = errors.New("missing string \"type\"")
	ErrDuplicateID = errors.New("duplicate event id")
)

// LineError locates a decoding failure.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Decode reads a whole trace and returns its events sorted by id.
func Decode(r io.Reader) ([]ir.Event, error) {
	reader := bufio.NewReaderSize(r, DefaultBufferSize)
	seen := make(map[ir.EventID]int)
	var events []ir.Event

	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read trace: %w", err)
		}
		if len(line) == 0 && err == io.EOF {
			break
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 && trimmed[0] != '#' {
			ev, decErr := decodeLine(trimmed)
			if decErr != nil {
				return nil, &LineError{Line: lineNo, Err: decErr}
			}
			if first, dup := seen[ev.ID]; dup {
				return nil, &LineError{Line: lineNo, Err: fmt.Errorf("%w %d (first on line %d)", ErrDuplicateID, ev.ID, first)}
			}
			seen[ev.ID] = lineNo
			events = append(events, ev)
		}

		if err == io.EOF {
			break
		}
	}

	sortByID(events)
	return events, nil
}

func decodeLine(line []byte) (ir.Event, error) {
	var obj ir.Object
	if err := json.Unmarshal(line, &obj); err != nil {
		return ir.Event{}, err
	}

	id, ok := obj[KeyID].(ir.Int)
	if !ok {
		return ir.Event{}, ErrMissingID
	}
	kind, ok := obj[KeyType].(ir.String)
	if !ok || kind == "" {
		return ir.Event{}, ErrMissingType
	}
	delete(obj, KeyID)
	delete(obj, KeyType)

	return ir.Event{ID: ir.EventID(id), Kind: string(kind), Fields: obj}, nil
}

// ReadFile decodes the trace at path.
func ReadFile(path string) ([]ir.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	events, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

func sortByID(events []ir.Event) {
	slices.SortFunc(events, func(a, b ir.Event) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
