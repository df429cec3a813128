package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/roach88/happensbefore/internal/ir"
)

// Encode writes events as one canonical JSON object per line. Keys are
// sorted, so the output of Decode followed by Encode is stable.
func Encode(w io.Writer, events []ir.Event) error {
	bw := bufio.NewWriter(w)
	for _, ev := range events {
		if _, clash := ev.Fields[KeyID]; clash {
			return fmt.Errorf("event %d: field %q is reserved", ev.ID, KeyID)
		}
		if _, clash := ev.Fields[KeyType]; clash {
			return fmt.Errorf("event %d: field %q is reserved", ev.ID, KeyType)
		}

		obj := make(ir.Object, len(ev.Fields)+2)
		for k, v := range ev.Fields {
			obj[k] = v
		}
		obj[KeyID] = ir.Int(ev.ID)
		obj[KeyType] = ir.String(ev.Kind)

		line, err := ir.MarshalCanonical(obj)
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.ID, err)
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
