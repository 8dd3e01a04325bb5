package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderRe matches {{ path.expr }} references inside string values.
var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// fallbackKeys are tried, in order, when a numeric path token does not
// match a map key directly. APIs wrap their lists under these names.
var fallbackKeys = []string{"messages", "items", "data", "results"}

// ResolveString substitutes every {{ ... }} placeholder in s against the
// stored-results map. Lookups that fail leave the placeholder literal.
// Each placeholder is matched against the original string, so earlier
// substitutions cannot corrupt later ones. Pure and idempotent.
func ResolveString(s string, stored map[string]any) string {
	matches := placeholderRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s
	}
	out := s
	for _, m := range matches {
		v, ok := lookupPath(stored, m[1])
		if !ok {
			continue
		}
		out = strings.ReplaceAll(out, m[0], renderValue(v))
	}
	return out
}

// ResolveParams returns a copy of params with placeholders resolved in
// every string value, recursing into nested maps and slices. The input
// is never mutated.
func ResolveParams(params map[string]any, stored map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = resolveValue(v, stored)
	}
	return out
}

func resolveValue(v any, stored map[string]any) any {
	switch t := v.(type) {
	case string:
		return ResolveString(t, stored)
	case map[string]any:
		return ResolveParams(t, stored)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveValue(e, stored)
		}
		return out
	default:
		return v
	}
}

// lookupPath walks expr ("step1.messages[0].id") through the stored map.
func lookupPath(stored map[string]any, expr string) (any, bool) {
	tokens := tokenizePath(expr)
	if len(tokens) == 0 {
		return nil, false
	}
	var node any = stored
	for _, tok := range tokens {
		next, ok := step(node, tok)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

func step(node any, tok string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		if v, ok := n[tok]; ok {
			return v, true
		}
		// A numeric token against a map usually means the value list is
		// wrapped one level down, e.g. {"messages": [...]}.
		if idx, err := strconv.Atoi(tok); err == nil {
			for _, key := range fallbackKeys {
				if arr, ok := n[key].([]any); ok && idx >= 0 && idx < len(arr) {
					return arr[idx], true
				}
			}
		}
		return nil, false
	case []any:
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	default:
		return nil, false
	}
}

// tokenizePath splits on '.', '[' and ']' so "a.b[2].c" and "a.b.2.c"
// walk identically.
func tokenizePath(expr string) []string {
	fields := strings.FieldsFunc(expr, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// renderValue converts a resolved value to its string form. Scalars use
// their natural rendering; composites are embedded as compact JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
		return fmt.Sprint(t)
	}
}
