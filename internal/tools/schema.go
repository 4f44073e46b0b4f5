package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// validateArgs checks args against a JSON-schema subset: top-level
// required, and per-property type, minimum and maximum. Properties the
// schema does not describe are left alone. It returns every problem
// found, sorted, or nil.
func validateArgs(schema map[string]any, args map[string]any) []string {
	if schema == nil {
		return nil
	}
	var problems []string

	for _, name := range requiredFields(schema["required"]) {
		if v, ok := args[name]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing required field %q", name))
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		prop, _ := raw.(map[string]any)
		if prop == nil {
			continue
		}
		problems = append(problems, checkProperty(name, prop, v)...)
	}

	sort.Strings(problems)
	return problems
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func checkProperty(name string, prop map[string]any, v any) []string {
	want, _ := prop["type"].(string)

	switch want {
	case "string":
		s, ok := v.(string)
		if !ok {
			return []string{fmt.Sprintf("%q must be a string", name)}
		}
		if s == "" {
			return []string{fmt.Sprintf("%q must not be empty", name)}
		}
		return nil
	case "boolean":
		if _, ok := v.(bool); !ok {
			return []string{fmt.Sprintf("%q must be a boolean", name)}
		}
		return nil
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return []string{fmt.Sprintf("%q must be an object", name)}
		}
		return nil
	case "array":
		if _, ok := v.([]any); !ok {
			return []string{fmt.Sprintf("%q must be an array", name)}
		}
		return nil
	case "number", "integer":
		n, ok := toFloat(v)
		if !ok {
			return []string{fmt.Sprintf("%q must be a %s", name, want)}
		}
		if want == "integer" && n != math.Trunc(n) {
			return []string{fmt.Sprintf("%q must be an integer", name)}
		}
		var problems []string
		if lo, ok := toFloat(prop["minimum"]); ok && n < lo {
			problems = append(problems, fmt.Sprintf("%q must be at least %v", name, lo))
		}
		if hi, ok := toFloat(prop["maximum"]); ok && n > hi {
			problems = append(problems, fmt.Sprintf("%q must be at most %v", name, hi))
		}
		return problems
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
