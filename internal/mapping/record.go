package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one loosely-typed input row. Numbers decoded from JSON are
// kept as json.Number so integer ids survive unchanged.
type Record map[string]any

// DecodeRecord decodes a JSON object into a Record.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("decode record: not an object")
	}
	return r, nil
}

// Payload re-encodes the record for raw storage.
func (r Record) Payload() (json.RawMessage, error) {
	b, err := json.Marshal(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// Has reports whether any of keys holds a non-null value.
func (r Record) Has(keys ...string) bool {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return true
		}
	}
	return false
}

// String returns the first non-empty scalar among keys, as text.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		if s := scalarText(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// Bool reports whether key holds a truthy value: true, a non-zero number,
// or "true", "yes", "y", "1".
func (r Record) Bool(keys ...string) bool {
	for _, k := range keys {
		switch v := r[k].(type) {
		case bool:
			if v {
				return true
			}
		case json.Number:
			if f, err := v.Float64(); err == nil && f != 0 {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "y", "1":
				return true
			}
		}
	}
	return false
}

// Int returns the first integer value among keys. Fractions are rounded.
func (r Record) Int(keys ...string) (int64, bool) {
	for _, k := range keys {
		if f, ok := number(r[k]); ok {
			return int64(math.Round(f)), true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}
