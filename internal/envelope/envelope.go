// Package envelope normalises host-supplied payloads into the shapes the
// toolkit works with. Data sources, reference providers and CRUD callbacks
// are all allowed to return a bare value, a `{result: ...}` or `{data: ...}`
// wrapper, or a JSON string; every consumer funnels through here so the
// unwrapping rule stays in one place.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wrapperKeys are probed in order when a map does not itself look like the
// requested shape.
var wrapperKeys = []string{"result", "data"}

// List normalises a payload into an ordered slice. Accepts a slice directly,
// unwraps common envelopes, and parses JSON strings that encode arrays or
// enveloped arrays.
func List(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, nil
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				return List(inner)
			}
		}
		return nil, fmt.Errorf("envelope: map payload has no %s wrapper", strings.Join(wrapperKeys, "/"))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return nil, fmt.Errorf("envelope: parse payload string: %w", err)
		}
		return List(parsed)
	case []byte:
		return List(string(v))
	case json.RawMessage:
		return List(string(v))
	default:
		return nil, fmt.Errorf("envelope: unsupported list payload %T", value)
	}
}

// Records normalises a payload into a slice of records. Non-map entries are
// skipped rather than failing the whole payload; a data source that mixes
// shapes is a host bug the toolkit tolerates.
func Records(value any) ([]map[string]any, error) {
	list, err := List(value)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Record normalises a payload into a single record, unwrapping envelopes and
// JSON strings. A one-element enveloped list is treated as its sole record.
func Record(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				if _, again := inner.(map[string]any); again {
					return Record(inner)
				}
				if list, isList := inner.([]any); isList && len(list) == 1 {
					return Record(list[0])
				}
			}
		}
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return nil, fmt.Errorf("envelope: parse record string: %w", err)
		}
		return Record(parsed)
	case []byte:
		return Record(string(v))
	case json.RawMessage:
		return Record(string(v))
	default:
		return nil, fmt.Errorf("envelope: unsupported record payload %T", value)
	}
}

// Ack interprets a delete-style response as an acknowledgement. Boolean
// payloads are taken at face value; everything else that is not an explicit
// failure counts as acknowledged.
func Ack(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "false", "0", "no", "error":
			return false
		}
		return true
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				return Ack(inner)
			}
		}
		if ok, exists := v["ok"]; exists {
			return Ack(ok)
		}
		if success, exists := v["success"]; exists {
			return Ack(success)
		}
		return true
	default:
		return true
	}
}
