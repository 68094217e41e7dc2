package topology

import "sort"

// sortedKeys returns the keys of m in ascending order, so iteration over
// topology maps is deterministic (spec.md §4.7 step 5 requires a stable
// link order).
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
