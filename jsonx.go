package omniagent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON parses LLM output that should be a JSON object, tolerating
// code fences and surrounding prose: it tries the full text first, then
// the first '{' through the last '}'.
func ExtractJSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty LLM output")
	}
	text = stripCodeFence(text)

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}

	a := strings.Index(text, "{")
	b := strings.LastIndex(text, "}")
	if a == -1 || b == -1 || b <= a {
		return nil, fmt.Errorf("no JSON object found in LLM output")
	}
	if err := json.Unmarshal([]byte(text[a:b+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// jsonString reads a string field from a decoded JSON object.
func jsonString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// jsonBoolMap reads a map of booleans from a decoded JSON object.
func jsonBoolMap(m map[string]any, key string) map[string]bool {
	out := map[string]bool{}
	nested, ok := m[key].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range nested {
		if b, ok := v.(bool); ok {
			out[k] = b
		}
	}
	return out
}
