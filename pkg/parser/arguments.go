package parser

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// RepairArguments decodes string values that are themselves serialized JSON
// objects or arrays, at any depth. Models sometimes encode nested arguments
// twice; plain strings, including ones that merely look like JSON but do
// not parse, are kept as they are.
//
// params is modified in place and returned.
func RepairArguments(params map[string]any) map[string]any {
	for k, v := range params {
		params[k] = repairValue(v)
	}
	return params
}

func repairValue(v any) any {
	switch val := v.(type) {
	case string:
		decoded, ok := decodeEmbeddedJSON(val)
		if !ok {
			return val
		}
		return repairValue(decoded)
	case map[string]any:
		for k, item := range val {
			val[k] = repairValue(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = repairValue(item)
		}
		return val
	default:
		return v
	}
}

func decodeEmbeddedJSON(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return nil, false
	}
	if !(s[0] == '{' && s[len(s)-1] == '}') && !(s[0] == '[' && s[len(s)-1] == ']') {
		return nil, false
	}
	if !gjson.Valid(s) {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// parseArguments decodes a complete argument string. complete is false
// while more fragments are needed; isObject is false when the text is
// valid JSON of another kind.
func parseArguments(raw string) (params map[string]any, complete, isObject bool) {
	if !gjson.Valid(raw) {
		return nil, false, false
	}
	if !gjson.Parse(raw).IsObject() {
		return nil, true, false
	}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, true, false
	}
	if params == nil {
		params = map[string]any{}
	}
	return RepairArguments(params), true, true
}
