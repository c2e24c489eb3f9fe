package storage

import (
	"encoding/json"
	"strings"
)

// PayloadTitle extracts the listing title from a raw JSON payload.
// Looks at "title", then "name". Returns "" when absent or not an object.
func PayloadTitle(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	for _, k := range []string{"title", "name"} {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
