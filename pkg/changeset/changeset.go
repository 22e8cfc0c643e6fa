// Package changeset compares profile documents decoded from JSON and keeps the
// ordered set of field names that changed between them.
package changeset

import (
	"sort"
)

// ChangedKeys returns, sorted, every top-level key of newData or oldData whose
// values are not deeply equal. A missing key and an explicit null are treated
// as the same value. Either document may be nil.
func ChangedKeys(newData, oldData map[string]any) []string {
	keys := make(map[string]struct{}, len(newData)+len(oldData))
	for k := range newData {
		keys[k] = struct{}{}
	}
	for k := range oldData {
		keys[k] = struct{}{}
	}

	changed := make([]string, 0)
	for k := range keys {
		if !Equal(newData[k], oldData[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Keys returns the sorted top-level keys of doc.
func Keys(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Union appends each name in add that is not already in set, keeping the
// original insertion order. The result never aliases set.
func Union(set []string, add ...string) []string {
	out := make([]string, 0, len(set)+len(add))
	seen := make(map[string]struct{}, len(set)+len(add))
	for _, group := range [][]string{set, add} {
		for _, name := range group {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Retain drops every name that is not a key of doc.
func Retain(set []string, doc map[string]any) []string {
	out := make([]string, 0, len(set))
	for _, name := range set {
		if _, ok := doc[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Equal compares two JSON-shaped values recursively. Numbers compare by value
// regardless of their Go type so documents built in code and decoded from JSON
// agree.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		return len(ChangedKeys(av, bv)) == 0
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case []string:
		return Equal(stringsToAny(av), b)
	}

	if bs, ok := b.([]string); ok {
		return Equal(a, stringsToAny(bs))
	}
	return false
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
