package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type deleteSentinel struct{}

// DeleteField, used as a value in Update or a merging Set, removes the field
// instead of storing null.
var DeleteField any = deleteSentinel{}

// IsDeleteField reports whether v is the DeleteField sentinel.
func IsDeleteField(v any) bool {
	_, ok := v.(deleteSentinel)
	return ok
}

type absentValue struct{ v any }

// IfAbsent, used as a value in Update or a merging Set, stores v only when the
// field does not exist yet. An existing value, null included, is kept.
func IfAbsent(v any) any { return absentValue{v: v} }

// AbsentValue unwraps an IfAbsent value.
func AbsentValue(v any) (any, bool) {
	a, ok := v.(absentValue)
	return a.v, ok
}

// SplitPath splits a dotted field path and rejects empty segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty field path", ErrInvalidArgument)
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: field path %q has an empty segment", ErrInvalidArgument, path)
		}
	}
	return parts, nil
}

// ValidateID rejects ids that cannot be used as a document id or path segment.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "./\x00") || strings.HasPrefix(id, "$") {
		return fmt.Errorf("%w: bad document id %q", ErrInvalidArgument, id)
	}
	return nil
}

// GetPath returns the value at a dotted path, or nil when absent.
func GetPath(data map[string]any, path string) any {
	cur := any(data)
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// ApplyUpdates applies dotted-path updates to data in place. Intermediate maps
// are created as needed and non-map intermediates are replaced.
func ApplyUpdates(data map[string]any, updates map[string]any) error {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts, err := SplitPath(key)
		if err != nil {
			return err
		}
		val := updates[key]
		parent := data
		for _, p := range parts[:len(parts)-1] {
			next, ok := parent[p].(map[string]any)
			if !ok {
				if IsDeleteField(val) {
					parent = nil
					break
				}
				next = map[string]any{}
				parent[p] = next
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		leaf := parts[len(parts)-1]
		if IsDeleteField(val) {
			delete(parent, leaf)
			continue
		}
		if a, ok := val.(absentValue); ok {
			if _, exists := parent[leaf]; !exists {
				parent[leaf] = stripSentinels(a.v)
			}
			continue
		}
		parent[leaf] = stripSentinels(val)
	}
	return nil
}

// MergeInto deep-merges src into dst. Nested maps merge key by key,
// DeleteField removes keys, IfAbsent fills missing keys, anything else
// overwrites.
func MergeInto(dst, src map[string]any) {
	for k, v := range src {
		if IsDeleteField(v) {
			delete(dst, k)
			continue
		}
		if a, ok := v.(absentValue); ok {
			if _, exists := dst[k]; !exists {
				dst[k] = stripSentinels(a.v)
			}
			continue
		}
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				MergeInto(dm, sm)
				continue
			}
		}
		dst[k] = stripSentinels(v)
	}
}

// stripSentinels resolves sentinels inside a value written where nothing
// existed before.
func stripSentinels(v any) any {
	if a, ok := v.(absentValue); ok {
		return stripSentinels(a.v)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, inner := range m {
		if IsDeleteField(inner) {
			continue
		}
		out[k] = stripSentinels(inner)
	}
	return out
}

func hasSentinel(v any) bool {
	if IsDeleteField(v) {
		return true
	}
	if m, ok := v.(map[string]any); ok {
		for _, inner := range m {
			if hasSentinel(inner) {
				return true
			}
		}
	}
	return false
}

// Normalize converts v into plain JSON types (map[string]any, []any, float64,
// string, bool, nil), keeping DeleteField and IfAbsent sentinels inside maps.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case deleteSentinel:
		return t, nil
	case absentValue:
		inner, err := Normalize(t.v)
		if err != nil {
			return nil, err
		}
		return absentValue{v: inner}, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			n, err := Normalize(inner)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return out, nil
}

// NormalizeMap normalizes every value of m.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	n, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	return n.(map[string]any), nil
}

// CloneMap deep-copies JSON-shaped data.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}
