package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// =============================================================================
// OPAQUE VALUES
// =============================================================================

// Value is the single opaque payload shape used for belief contents, task
// parameters, and record attributes. Consumers that need structure assert it
// through the typed accessors below instead of scattering type switches.
type Value map[string]any

// Clone returns a shallow copy. Nested maps and slices are shared; callers
// that mutate nested state must copy those levels themselves.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge overlays other on top of v, returning a new Value. Keys in other win.
func (v Value) Merge(other Value) Value {
	out := v.Clone()
	if out == nil {
		out = Value{}
	}
	for k, val := range other {
		out[k] = val
	}
	return out
}

// String returns the string at key, or "" when missing or not a string.
func (v Value) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// Float returns the numeric value at key coerced to float64. JSON decoding
// yields float64 for all numbers, but values set in-process may be int, and
// scraped attributes are often numeric strings ("3500", "$3,500").
func (v Value) Float(key string) (float64, bool) {
	return coerceFloat(v[key])
}

// Int returns the value at key truncated to int.
func (v Value) Int(key string) (int, bool) {
	f, ok := v.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns the bool at key, or false when missing.
func (v Value) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Strings returns the value at key as a string slice. Accepts []string,
// []any of strings, or a single string (wrapped in a one-element slice).
func (v Value) Strings(key string) []string {
	switch s := v[key].(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return nil
}

// Map returns the nested Value at key, or nil.
func (v Value) Map(key string) Value {
	switch m := v[key].(type) {
	case Value:
		return m
	case map[string]any:
		return Value(m)
	}
	return nil
}

// Has reports whether key is present with a non-nil value.
func (v Value) Has(key string) bool {
	val, ok := v[key]
	return ok && val != nil
}

// JSON renders the value as compact JSON for logging. Errors collapse to "{}"
// so log lines never fail on payload content.
func (v Value) JSON() string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// coerceFloat widens the numeric shapes that show up in practice: native Go
// numbers from in-process producers, float64 from JSON, and numeric strings
// (optionally with currency noise) from scraped pages.
func coerceFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
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
	case string:
		cleaned := strings.TrimSpace(strings.NewReplacer("$", "", "€", "", ",", "", " ", "").Replace(n))
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	}
	return 0, false
}
