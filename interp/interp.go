// Package interp implements template substitution of {{path}} tokens in
// reaction configuration against a triggering event's payload.
package interp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// maxInlineObjectJSON is the longest compact JSON form an object may take
// before it is rendered as "[Object]".
const maxInlineObjectJSON = 100

var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Interpolate returns a deep copy of config in which every string value has
// its {{ path.to.value }} tokens replaced by a stringified lookup into
// {action: {payload: actionPayload}}. A token whose path does not resolve is
// left verbatim, braces included. Non-string leaves pass through unchanged;
// nested maps and slices are walked recursively, preserving their structure.
func Interpolate(config, actionPayload map[string]any) map[string]any {
	ctx := map[string]any{
		"action": map[string]any{"payload": actionPayload},
	}
	return interpolateMap(config, ctx)
}

// String resolves {{path}} tokens in a single template string against an
// arbitrary context. Each token is independently resolved.
func String(template string, ctx map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := lookup(ctx, path)
		if !ok {
			return match
		}
		return stringify(v)
	})
}

func interpolateMap(m map[string]any, ctx map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = interpolateValue(v, ctx)
	}
	return out
}

func interpolateSlice(s []any, ctx map[string]any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = interpolateValue(v, ctx)
	}
	return out
}

func interpolateValue(v any, ctx map[string]any) any {
	switch tv := v.(type) {
	case string:
		return String(tv, ctx)
	case map[string]any:
		return interpolateMap(tv, ctx)
	case []any:
		return interpolateSlice(tv, ctx)
	default:
		return v
	}
}

// lookup descends the context by splitting path on "." and indexing maps.
// A missing key at any level fails the whole lookup.
func lookup(ctx map[string]any, path string) (any, bool) {
	var current any = ctx
	for key := range strings.SplitSeq(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify renders a resolved value for inline substitution.
func stringify(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []any:
		if len(tv) == 0 {
			return ""
		}
		parts := make([]string, 0, len(tv))
		for _, item := range tv {
			if !isPrimitive(item) {
				return fmt.Sprintf("[%d item(s)]", len(tv))
			}
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		raw, err := json.Marshal(tv)
		if err != nil || len(raw) > maxInlineObjectJSON {
			return "[Object]"
		}
		return string(raw)
	default:
		return fmt.Sprint(v)
	}
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}
