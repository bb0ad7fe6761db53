package fetcher

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// DecodeJSONItems decodes a payload that is either an envelope object with
// an "items" array, a bare array, or a single object. Numbers are kept as
// float64 so values compare the same regardless of source. Array elements
// that are not objects are skipped and counted.
func DecodeJSONItems(data []byte) (items []map[string]any, skipped int, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, 0, nil
	}

	var list []any
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, 0, eris.Wrap(err, "json: decode array")
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, 0, eris.Wrap(err, "json: decode object")
		}
		raw, ok := obj["items"]
		if !ok {
			return []map[string]any{obj}, 0, nil
		}
		if list, ok = raw.([]any); !ok {
			return nil, 0, eris.Errorf("json: items is %T, want array", raw)
		}
	default:
		return nil, 0, eris.Errorf("json: unexpected leading byte %q", trimmed[0])
	}

	items = make([]map[string]any, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		items = append(items, m)
	}
	return items, skipped, nil
}
