package consolidate

import "github.com/atlasmemory/atlas/internal/storage"

// parentIDs extracts the "parents" payload field as a string slice,
// tolerating both the []string a fake store might hand back in tests and
// the []any a real JSON-decoded payload produces.
func parentIDs(payload map[string]any) []string {
	raw, ok := payload["parents"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
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

// ancestorClosure returns every id transitively reachable by following
// "parents" edges from id, not including id itself. byID must contain
// every point that might appear as a parent.
func ancestorClosure(id string, byID map[string]storage.Point) map[string]bool {
	closure := map[string]bool{}
	var visit func(string)
	visit = func(current string) {
		point, ok := byID[current]
		if !ok {
			return
		}
		for _, p := range parentIDs(point.Payload) {
			if closure[p] {
				continue
			}
			closure[p] = true
			visit(p)
		}
	}
	visit(id)
	return closure
}

// clusterCreatesCycle reports whether merging members into one new chunk
// would violate the DAG invariant: true if any member is already an
// ancestor of another member in the same cluster, which would make the new
// chunk's parent set internally inconsistent (a parent that is also a
// grandparent of a sibling parent).
func clusterCreatesCycle(members []string, byID map[string]storage.Point) bool {
	for _, m := range members {
		closure := ancestorClosure(m, byID)
		for _, other := range members {
			if other == m {
				continue
			}
			if closure[other] {
				return true
			}
		}
	}
	return false
}
