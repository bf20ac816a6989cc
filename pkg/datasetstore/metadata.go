package datasetstore

import (
	"encoding/json"
	"fmt"
)

// Metadata values are persisted as text. Strings pass through verbatim;
// structured values round-trip through JSON.

func encodeMetadata(in map[string]any) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata value for %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func decodeMetadata(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			switch parsed.(type) {
			case map[string]any, []any, float64, bool, nil:
				out[k] = parsed
				continue
			}
		}
		out[k] = v
	}
	return out
}
