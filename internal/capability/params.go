package capability

// Str returns params[key] as a string, or def when absent or not a string.
func Str(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Int returns params[key] as an int. JSON numbers arrive as float64.
func Int(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// Strings returns params[key] as a string slice, tolerating []any input.
func Strings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Schema builds a JSON Schema object for a parameter set.
func Schema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// StrProp is a string property with a description.
func StrProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// IntProp is an integer property with a description.
func IntProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// StrListProp is a string-array property with a description.
func StrListProp(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}
