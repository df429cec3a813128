package store

import (
	"fmt"

	"github.com/roach88/happensbefore/internal/ir"
)

// marshalFields converts event fields to canonical JSON TEXT for storage.
func marshalFields(fields ir.Object) (string, error) {
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT back into event fields.
// Integers keep full precision.
func unmarshalFields(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
