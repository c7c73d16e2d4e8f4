// Package fieldpath resolves display fields from dynamic JSON objects whose
// exact schema varies between vendors and API versions. Callers pass an
// ordered list of candidate keys (dotted keys descend into nested objects)
// and receive the first non-empty match.
//
// This package is Apache 2.0 licensed, part of the public plugin SDK.
package fieldpath

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Lookup returns the first non-empty value found under any of the candidate
// keys, in order. A key containing dots ("uplink.remote_port") is resolved as
// a nested path. Returns nil when no candidate yields a value.
func Lookup(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		v := resolve(obj, key)
		if !empty(v) {
			return v
		}
	}
	return nil
}

// String is Lookup rendered as a string. Numbers are formatted without an
// exponent, booleans as "true"/"false"; nil and empty strings yield "".
func String(obj map[string]any, keys ...string) string {
	return Stringify(Lookup(obj, keys...))
}

// Number returns the first candidate that is (or parses as) a number.
// The ok result is false when no candidate is numeric.
func Number(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := resolve(obj, key).(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Bool returns the first candidate that reads as a boolean. Accepts real
// booleans, "true"/"false" strings and 0/1 numerics (vendor APIs use all
// three interchangeably). The ok result is false when no candidate matches.
func Bool(obj map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		switch v := resolve(obj, key).(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(v) {
			case "true", "1", "yes":
				return true, true
			case "false", "0", "no":
				return false, true
			}
		case float64:
			return v != 0, true
		case int:
			return v != 0, true
		}
	}
	return false, false
}

// Has reports whether any candidate key is present at all, even if its value
// is empty. Distinguishes "field absent" from "field empty", which matters
// for status-default policies.
func Has(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		if present(obj, key) {
			return true
		}
	}
	return false
}

// Stringify renders a dynamic JSON value as display text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	return ""
}

// resolve walks a possibly-dotted key through nested maps.
func resolve(obj map[string]any, key string) any {
	if obj == nil {
		return nil
	}
	if !strings.Contains(key, ".") {
		return obj[key]
	}

	parts := strings.Split(key, ".")
	cur := any(obj)
	for _, part := range parts {
		cur = step(cur, part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// step descends one path segment: a map key, or an array index when the
// current value is an array and the segment is numeric.
func step(cur any, part string) any {
	switch t := cur.(type) {
	case map[string]any:
		return t[part]
	case []any:
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= len(t) {
			return nil
		}
		return t[idx]
	}
	return nil
}

// present reports whether the (possibly dotted) key exists in obj.
func present(obj map[string]any, key string) bool {
	if obj == nil {
		return false
	}
	if !strings.Contains(key, ".") {
		_, ok := obj[key]
		return ok
	}

	parts := strings.Split(key, ".")
	cur := any(obj)
	for _, part := range parts {
		switch t := cur.(type) {
		case map[string]any:
			v, ok := t[part]
			if !ok {
				return false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(t) {
				return false
			}
			cur = t[idx]
		default:
			return false
		}
	}
	return true
}

// empty reports whether a resolved value should be skipped in favor of the
// next candidate key.
func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}
