// Package jsonval provides defensive accessors over decoded JSON trees.
//
// Server responses and host event payloads arrive as arbitrary
// map[string]any trees; every accessor here is total and returns a
// fallback value instead of panicking on a missing or mistyped field.
package jsonval

import "encoding/json"

// Object is a decoded JSON object.
type Object = map[string]any

// OptString returns the string at key, or fallback when the key is
// absent or holds a non-string value.
func OptString(obj Object, key, fallback string) string {
	if obj == nil {
		return fallback
	}
	if s, ok := obj[key].(string); ok {
		return s
	}
	return fallback
}

// OptBool returns the bool at key, or fallback.
func OptBool(obj Object, key string, fallback bool) bool {
	if obj == nil {
		return fallback
	}
	if b, ok := obj[key].(bool); ok {
		return b
	}
	return fallback
}

// OptInt returns the numeric value at key as an int, or fallback.
// JSON numbers decode as float64, but int values set in-process are
// accepted too.
func OptInt(obj Object, key string, fallback int) int {
	return int(OptInt64(obj, key, int64(fallback)))
}

// OptInt64 returns the numeric value at key as an int64, or fallback.
func OptInt64(obj Object, key string, fallback int64) int64 {
	if obj == nil {
		return fallback
	}
	switch v := obj[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return fallback
}

// OptFloat64 returns the numeric value at key as a float64, or fallback.
func OptFloat64(obj Object, key string, fallback float64) float64 {
	if obj == nil {
		return fallback
	}
	switch v := obj[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

// OptObject returns the nested object at key, or nil.
func OptObject(obj Object, key string) Object {
	if obj == nil {
		return nil
	}
	if m, ok := obj[key].(map[string]any); ok {
		return m
	}
	return nil
}

// OptArray returns the array at key, or nil.
func OptArray(obj Object, key string) []any {
	if obj == nil {
		return nil
	}
	if a, ok := obj[key].([]any); ok {
		return a
	}
	return nil
}

// OptStringMap returns the object at key with every value coerced to a
// string, or nil when the key is absent. Non-string values are skipped.
func OptStringMap(obj Object, key string) map[string]string {
	nested := OptObject(obj, key)
	if nested == nil {
		return nil
	}
	return ToStringMap(nested)
}

// OptStringSlice returns the array at key keeping only string entries,
// or nil when the key is absent.
func OptStringSlice(obj Object, key string) []string {
	arr := OptArray(obj, key)
	if arr == nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ToStringMap copies obj keeping only the entries whose values are
// strings.
func ToStringMap(obj Object) map[string]string {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// IsEmpty reports whether obj is nil or has no entries.
func IsEmpty(obj Object) bool {
	return len(obj) == 0
}

// Decode parses raw JSON into an Object. Returns nil and the decode
// error when raw is empty or not a JSON object.
func Decode(raw []byte) (Object, error) {
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Stringify renders obj as compact JSON. Marshalling a tree of plain
// maps, slices and scalars cannot fail; on the off chance it does, an
// empty string is returned.
func Stringify(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
